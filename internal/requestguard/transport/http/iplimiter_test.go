package httptransport_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	httptransport "requestguard/internal/requestguard/transport/http"
)

func TestIPLimiter_BurstThenDeny(t *testing.T) {
	limiter := httptransport.NewIPLimiter(httptransport.IPLimiterOptions{RatePerSecond: 0.001, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "other clients are unaffected")
}

func TestIPLimiter_NilAllows(t *testing.T) {
	var limiter *httptransport.IPLimiter
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestIPLimiter_CleanupDropsIdleEntries(t *testing.T) {
	limiter := httptransport.NewIPLimiter(httptransport.IPLimiterOptions{
		RatePerSecond: 0.001,
		Burst:         1,
		IdleTTL:       time.Nanosecond,
	})

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	time.Sleep(time.Millisecond)
	limiter.Cleanup()

	// The entry was dropped, so the client starts with a fresh bucket.
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name           string
		remoteAddr     string
		forwardedFor   string
		trustForwarded bool
		want           string
	}{
		{"host port", "198.51.100.7:9921", "", false, "198.51.100.7"},
		{"forwarded ignored", "198.51.100.7:9921", "203.0.113.1", false, "198.51.100.7"},
		{"forwarded trusted", "198.51.100.7:9921", "203.0.113.1", true, "203.0.113.1"},
		{"forwarded chain", "198.51.100.7:9921", "203.0.113.1, 10.0.0.1", true, "203.0.113.1"},
		{"bare address", "198.51.100.7", "", false, "198.51.100.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}
			assert.Equal(t, tc.want, httptransport.ClientIP(req, tc.trustForwarded))
		})
	}
}
