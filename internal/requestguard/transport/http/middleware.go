// Package httptransport wires the guards onto the request cycle.
package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"requestguard/internal/requestguard/core"
	"requestguard/internal/requestguard/observability"
)

// SecurityHardeningOptions configures the hardening middleware.
type SecurityHardeningOptions struct {
	TrustForwarded bool
	Logger         *zap.Logger
	Metrics        observability.Metrics
}

// SecurityHardening runs the threat scanner, then the per-IP limiter, then
// the handler. Blocked requests receive a 403 envelope with the finding
// details; rate-limited clients receive a 429 envelope. Scanner headers
// and an X-Security-Analysis summary are stamped on every response.
func SecurityHardening(scanner *core.ThreatScanner, ips *IPLimiter, opts SecurityHardeningOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			report := scanner.Scan(r)
			if opts.Metrics != nil {
				opts.Metrics.ObserveLatency("threat_scan", time.Since(start))
			}
			for name, value := range report.Headers {
				w.Header().Set(name, value)
			}
			analysis, err := json.Marshal(map[string]any{
				"risk_level": report.RiskLevel.String(),
				"threats":    len(report.Findings),
			})
			if err == nil {
				w.Header().Set("X-Security-Analysis", string(analysis))
			}

			if report.Block {
				if opts.Metrics != nil {
					opts.Metrics.IncDecision("threat", "blocked")
				}
				writeEnvelope(w, http.StatusForbidden, NewErrorEnvelope(
					core.CodeSecurityThreat,
					"request blocked by security policy",
					map[string]any{
						"risk_level": report.RiskLevel.String(),
						"threats":    report.Findings,
					}))
				return
			}
			if opts.Metrics != nil {
				opts.Metrics.IncDecision("threat", "allowed")
			}

			ip := ClientIP(r, opts.TrustForwarded)
			if ips != nil && !ips.Allow(ip) {
				if opts.Metrics != nil {
					opts.Metrics.IncDecision("ip_rate", "blocked")
				}
				logger.Warn("ip rate limit exceeded", zap.String("client_ip", ip))
				writeEnvelope(w, http.StatusTooManyRequests, NewErrorEnvelope(
					core.CodeRateLimitExceeded,
					"too many requests from this address",
					map[string]any{"client_ip": ip}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimitTypeFromPath maps a URL path onto a size limit category.
func LimitTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/users/"):
		return core.LimitAuthentication
	case strings.Contains(path, "/upload/"):
		return core.LimitFileUpload
	case strings.Contains(path, "/bulk_"):
		return core.LimitBulkCreate
	default:
		return core.LimitGeneralAPI
	}
}

// RequestSizeLimit rejects oversized requests with a 413 envelope and
// stamps size headroom headers otherwise. The limit category is derived
// from the URL path.
func RequestSizeLimit(guard *core.SizeGuard, metrics observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limitType := LimitTypeFromPath(r.URL.Path)
			report := guard.Validate(r, limitType)
			if !report.Allowed {
				if metrics != nil {
					metrics.IncDecision("size", "blocked")
				}
				writeEnvelope(w, http.StatusRequestEntityTooLarge, NewErrorEnvelope(
					core.CodeRequestSizeExceeded,
					"request exceeds the size limit for this endpoint",
					map[string]any{
						"request_size": report.RequestSize,
						"size_limit":   report.SizeLimit,
						"excess_size":  report.ExcessSize,
						"limit_type":   report.LimitType,
					}))
				return
			}
			if metrics != nil {
				metrics.IncDecision("size", "allowed")
			}
			w.Header().Set("X-Request-Size-Limit", strconv.FormatInt(report.SizeLimit, 10))
			w.Header().Set("X-Request-Size-Limit-MB", strconv.FormatInt(report.SizeLimit>>20, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitOptions configures the rate limit middleware, mirroring the
// per-view decorator: a limit category plus optional user keying and
// size-aware adaptive scaling.
type RateLimitOptions struct {
	LimitType string
	UserBased bool
	SizeAware bool
	KeyFn     func(*http.Request) string
	UserFn    func(*http.Request) string
	Logger    *zap.Logger
	Metrics   observability.Metrics
}

// RateLimit enforces the category policy for each request, replying 429
// with counter details on rejection and stamping X-RateLimit-* headers
// otherwise.
func RateLimit(guard *core.RateGuard, opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.LimitType == "" {
		opts.LimitType = core.LimitGeneralAPI
	}
	if opts.KeyFn == nil {
		opts.KeyFn = func(r *http.Request) string {
			return r.Method + ":" + r.URL.Path
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := core.RateQuery{
				Key:       opts.KeyFn(r),
				LimitType: opts.LimitType,
			}
			if opts.UserBased && opts.UserFn != nil {
				query.UserID = opts.UserFn(r)
			}
			if opts.SizeAware {
				if size, err := core.RequestSize(r); err == nil {
					query.RequestSize = size
				}
			}

			decision := guard.Allow(r.Context(), query)
			if opts.Metrics != nil {
				result := "allowed"
				if !decision.Allowed {
					result = "blocked"
				}
				opts.Metrics.IncDecision("rate", result)
			}
			if !decision.Allowed {
				writeEnvelope(w, http.StatusTooManyRequests, NewErrorEnvelope(
					core.CodeRateLimitExceeded,
					"rate limit exceeded for "+opts.LimitType,
					map[string]any{
						"current_count":  decision.CurrentCount,
						"limit":          decision.Limit,
						"window_seconds": int64(decision.Window.Seconds()),
						"reset_time":     decision.ResetAt.UTC().Format(time.RFC3339),
						"burst_exceeded": decision.BurstExceeded,
					}))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			w.Header().Set("X-RateLimit-Burst-Remaining", strconv.FormatInt(decision.BurstRemaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
