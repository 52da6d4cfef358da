// Package grpctransport applies the guards to gRPC traffic.
package grpctransport

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"requestguard/internal/requestguard/core"
	"requestguard/internal/requestguard/observability"
)

// userIDMetadataKey carries the authenticated user id, when the caller
// propagates one.
const userIDMetadataKey = "x-user-id"

// UnaryRateLimit enforces a rate policy per RPC method. Denied calls fail
// with ResourceExhausted; the retry delay rides in trailer metadata.
func UnaryRateLimit(guard *core.RateGuard, limitType string, logger *zap.Logger, metrics observability.Metrics) grpc.UnaryServerInterceptor {
	if limitType == "" {
		limitType = core.LimitGeneralAPI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		query := core.RateQuery{
			Key:       info.FullMethod,
			LimitType: limitType,
			UserID:    userIDFromContext(ctx),
		}
		decision := guard.Allow(ctx, query)
		if metrics != nil {
			result := "allowed"
			if !decision.Allowed {
				result = "blocked"
			}
			metrics.IncDecision("grpc_rate", result)
		}
		if !decision.Allowed {
			trailer := metadata.Pairs(
				"retry-after-seconds", strconv.FormatInt(int64(decision.RetryAfter.Seconds()), 10),
			)
			_ = grpc.SetTrailer(ctx, trailer)
			logger.Warn("grpc rate limit exceeded",
				zap.String("method", info.FullMethod),
				zap.Int64("limit", decision.Limit))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// UnaryLogging logs each RPC with its duration.
func UnaryLogging(logger *zap.Logger, metrics observability.Metrics) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if metrics != nil {
			metrics.ObserveLatency("grpc:"+info.FullMethod, time.Since(start))
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Error("grpc request error", append(fields, zap.Error(err))...)
			return resp, err
		}
		logger.Info("grpc request", fields...)
		return resp, nil
	}
}

func userIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(userIDMetadataKey)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
