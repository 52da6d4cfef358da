// Package core provides sliding-window rate enforcement.
package core

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// systemLoadKey is where the platform publishes its sampled load gauge.
const systemLoadKey = "system:load"

// RateQuery captures a single rate limit decision request.
type RateQuery struct {
	Key         string
	LimitType   string
	UserID      string
	RequestSize int64
}

// RateDecision reports the outcome of a rate limit decision.
type RateDecision struct {
	Allowed        bool
	LimitType      string
	Limit          int64
	Remaining      int64
	CurrentCount   int64
	Window         time.Duration
	BurstLimit     int64
	BurstRemaining int64
	BurstExceeded  bool
	ResetAt        time.Time
	RetryAfter     time.Duration
	FailedOpen     bool
}

// RateGuard maintains per-key counters in the shared store with a main
// window and a burst sub-window. Counters are advanced with the store's
// atomic increment, so the limit is a hard ceiling under concurrency.
type RateGuard struct {
	store    CounterStore
	policies map[string]RatePolicy
	breaker  *StoreBreaker
	logger   *zap.Logger
	now      func() time.Time
}

// RateGuardOptions configures a RateGuard.
type RateGuardOptions struct {
	Policies map[string]RatePolicy
	Breaker  *StoreBreaker
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewRateGuard constructs a guard over a counter store.
func NewRateGuard(store CounterStore, opts RateGuardOptions) *RateGuard {
	if opts.Policies == nil {
		opts.Policies = DefaultRatePolicies()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RateGuard{
		store:    store,
		policies: opts.Policies,
		breaker:  opts.Breaker,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// PolicyFor resolves the effective policy for a query: the base category
// policy, replaced wholesale by a per-user override when one exists, then
// scaled by the most-restrictive-wins adaptive rule.
func (g *RateGuard) PolicyFor(ctx context.Context, q RateQuery) RatePolicy {
	policy, ok := g.policies[q.LimitType]
	if !ok {
		policy = g.policies[LimitGeneralAPI]
	}
	if override, ok := g.userOverride(ctx, q.UserID, q.LimitType); ok {
		policy = override
	}
	scale := MostRestrictiveScale(g.systemLoad(ctx), q.RequestSize)
	if scale < 1.0 {
		scaled := int64(float64(policy.Requests) * scale)
		if scaled < 1 {
			scaled = 1
		}
		policy.Requests = scaled
	}
	return policy
}

// Allow evaluates the main and burst windows for a query. Store failures
// fail open: the request is allowed and the decision is flagged.
func (g *RateGuard) Allow(ctx context.Context, q RateQuery) RateDecision {
	if g == nil || g.store == nil {
		return RateDecision{Allowed: true, LimitType: q.LimitType, FailedOpen: true}
	}
	policy := g.PolicyFor(ctx, q)
	decision := RateDecision{
		LimitType:  q.LimitType,
		Limit:      policy.Requests,
		Window:     policy.Window,
		BurstLimit: policy.Burst,
	}
	if g.breaker != nil && !g.breaker.Allow() {
		g.logger.Warn("rate guard failing open, store breaker open",
			zap.String("limit_type", q.LimitType))
		decision.Allowed = true
		decision.FailedOpen = true
		return decision
	}

	mainKey := g.counterKey(q, variantMain)
	burstKey := g.counterKey(q, variantBurst)

	count, err := g.store.Incr(ctx, mainKey, policy.Window)
	if err != nil {
		return g.failOpen(decision, q, err)
	}
	burstCount, err := g.store.Incr(ctx, burstKey, policy.BurstWindow())
	if err != nil {
		return g.failOpen(decision, q, err)
	}
	if g.breaker != nil {
		g.breaker.OnSuccess()
	}

	if count > policy.Requests {
		decision.CurrentCount = count - 1
		decision.ResetAt, decision.RetryAfter = g.resetAt(ctx, mainKey, policy.Window)
		return decision
	}
	if policy.Burst > 0 && burstCount > policy.Burst {
		decision.CurrentCount = count
		decision.BurstExceeded = true
		decision.ResetAt, decision.RetryAfter = g.resetAt(ctx, burstKey, policy.BurstWindow())
		return decision
	}

	decision.Allowed = true
	decision.CurrentCount = count
	decision.Remaining = policy.Requests - count
	if policy.Burst > 0 {
		decision.BurstRemaining = policy.Burst - burstCount
	}
	decision.ResetAt, _ = g.resetAt(ctx, mainKey, policy.Window)
	return decision
}

type counterVariant string

const (
	variantMain  counterVariant = "main"
	variantBurst counterVariant = "burst"
)

// counterKey builds rate_limit:{limitType}[:{userID}]:{variant}:{key}.
func (g *RateGuard) counterKey(q RateQuery, variant counterVariant) string {
	parts := []string{"rate_limit", q.LimitType}
	if q.UserID != "" {
		parts = append(parts, q.UserID)
	}
	parts = append(parts, string(variant), q.Key)
	return strings.Join(parts, ":")
}

func (g *RateGuard) failOpen(decision RateDecision, q RateQuery, err error) RateDecision {
	if g.breaker != nil {
		g.breaker.OnFailure()
	}
	g.logger.Error("rate guard failing open",
		zap.String("limit_type", q.LimitType),
		zap.String("key", q.Key),
		zap.Error(err))
	decision.Allowed = true
	decision.FailedOpen = true
	return decision
}

func (g *RateGuard) resetAt(ctx context.Context, key string, window time.Duration) (time.Time, time.Duration) {
	ttl, err := g.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		ttl = window
	}
	return g.now().Add(ttl), ttl
}

func (g *RateGuard) userOverride(ctx context.Context, userID, limitType string) (RatePolicy, bool) {
	if userID == "" {
		return RatePolicy{}, false
	}
	raw, ok, err := g.store.GetBytes(ctx, "user_limits:"+userID+":"+limitType)
	if err != nil || !ok {
		if err != nil {
			g.logger.Error("user override lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return RatePolicy{}, false
	}
	var policy RatePolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		g.logger.Error("user override malformed", zap.String("user_id", userID), zap.Error(err))
		return RatePolicy{}, false
	}
	if policy.Requests <= 0 || policy.Window <= 0 {
		return RatePolicy{}, false
	}
	return policy, true
}

func (g *RateGuard) systemLoad(ctx context.Context) float64 {
	raw, ok, err := g.store.GetBytes(ctx, systemLoadKey)
	if err != nil || !ok {
		return 0
	}
	load, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0
	}
	return load
}
