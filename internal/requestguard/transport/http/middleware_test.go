package httptransport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestguard/internal/requestguard/core"
	"requestguard/internal/requestguard/store/inmemory"
	httptransport "requestguard/internal/requestguard/transport/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httptransport.ErrorEnvelope {
	t.Helper()
	var env httptransport.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestRateLimit_EnforcesAuthenticationCategory(t *testing.T) {
	store := inmemory.New()
	guard := core.NewRateGuard(store, core.RateGuardOptions{})
	handler := httptransport.RateLimit(guard, httptransport.RateLimitOptions{
		LimitType: core.LimitAuthentication,
	})(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.EqualValues(t, 10, env.Error.Details["current_count"])
	assert.EqualValues(t, 10, env.Error.Details["limit"])
	assert.EqualValues(t, 60, env.Error.Details["window_seconds"])
	assert.Equal(t, "v1", env.Meta.Version)
	assert.NotEmpty(t, env.Meta.RequestID)
}

func TestRateLimit_StampsHeaders(t *testing.T) {
	store := inmemory.New()
	guard := core.NewRateGuard(store, core.RateGuardOptions{})
	handler := httptransport.RateLimit(guard, httptransport.RateLimitOptions{
		LimitType: core.LimitAuthentication,
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "19", rec.Header().Get("X-RateLimit-Burst-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_SeparateKeysPerEndpoint(t *testing.T) {
	store := inmemory.New()
	guard := core.NewRateGuard(store, core.RateGuardOptions{})
	handler := httptransport.RateLimit(guard, httptransport.RateLimitOptions{
		LimitType: core.LimitAuthentication,
	})(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "a different endpoint has its own counter")
}

func TestRateLimit_UserBasedKeying(t *testing.T) {
	store := inmemory.New()
	guard := core.NewRateGuard(store, core.RateGuardOptions{})
	handler := httptransport.RateLimit(guard, httptransport.RateLimitOptions{
		LimitType: core.LimitAuthentication,
		UserBased: true,
		UserFn: func(r *http.Request) string {
			return r.Header.Get("X-User-ID")
		},
	})(okHandler())

	send := func(user string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
		req.Header.Set("X-User-ID", user)
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, send("alice"))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"))
}

func TestSecurityHardening_BlocksInjection(t *testing.T) {
	scanner := core.NewThreatScanner(core.ThreatScannerOptions{})
	handler := httptransport.SecurityHardening(scanner, nil, httptransport.SecurityHardeningOptions{})(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/tickets?id=1%27+OR+%271%27%3D%271", nil)
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "SECURITY_THREAT_DETECTED", env.Error.Code)
	risk, _ := env.Error.Details["risk_level"].(string)
	assert.Contains(t, []string{"high", "critical"}, risk)
	assert.NotEmpty(t, env.Error.Details["threats"])
}

func TestSecurityHardening_PassesCleanRequests(t *testing.T) {
	scanner := core.NewThreatScanner(core.ThreatScannerOptions{})
	handler := httptransport.SecurityHardening(scanner, nil, httptransport.SecurityHardeningOptions{})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tickets?page=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	var analysis map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Security-Analysis")), &analysis))
	assert.Equal(t, "low", analysis["risk_level"])
	assert.EqualValues(t, 0, analysis["threats"])
}

func TestSecurityHardening_IPRateLimit(t *testing.T) {
	scanner := core.NewThreatScanner(core.ThreatScannerOptions{})
	ips := httptransport.NewIPLimiter(httptransport.IPLimiterOptions{RatePerSecond: 0.001, Burst: 2})
	handler := httptransport.SecurityHardening(scanner, ips, httptransport.SecurityHardeningOptions{})(okHandler())

	send := func() int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/tickets", nil)
		req.RemoteAddr = "203.0.113.9:4411"
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusOK, send())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/tickets", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "203.0.113.9", env.Error.Details["client_ip"])
}

func TestRequestSizeLimit_RejectsOversizedUpload(t *testing.T) {
	guard := core.NewSizeGuard(nil, nil)
	handler := httptransport.RequestSizeLimit(guard, nil)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/upload/attachments", strings.NewReader("x"))
	req.ContentLength = 101 << 20
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "REQUEST_SIZE_EXCEEDED", env.Error.Code)
	assert.Equal(t, "file_upload", env.Error.Details["limit_type"])
	assert.EqualValues(t, 100<<20, env.Error.Details["size_limit"])
	assert.EqualValues(t, 1<<20, env.Error.Details["excess_size"])
}

func TestRequestSizeLimit_StampsHeadroomHeaders(t *testing.T) {
	guard := core.NewSizeGuard(nil, nil)
	handler := httptransport.RequestSizeLimit(guard, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tickets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10485760", rec.Header().Get("X-Request-Size-Limit"))
	assert.Equal(t, "10", rec.Header().Get("X-Request-Size-Limit-MB"))
}

func TestLimitTypeFromPath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/users/login":       core.LimitAuthentication,
		"/api/v1/upload/avatar":     core.LimitFileUpload,
		"/api/v1/tickets/bulk_edit": core.LimitBulkCreate,
		"/api/v1/tickets":           core.LimitGeneralAPI,
	}
	for path, want := range cases {
		assert.Equal(t, want, httptransport.LimitTypeFromPath(path), path)
	}
}
