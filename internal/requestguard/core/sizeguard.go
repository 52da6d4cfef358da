// Package core provides request size enforcement.
package core

import (
	"net/http"

	"go.uber.org/zap"
)

// SizeReport captures a size validation outcome.
type SizeReport struct {
	Allowed     bool
	LimitType   string
	RequestSize int64
	SizeLimit   int64
	ExcessSize  int64
	Remaining   int64
	FailedOpen  bool
}

// SizeGuard compares a request's total byte size against a per-category
// limit. Instances are immutable after construction and safe for
// concurrent use.
type SizeGuard struct {
	limits map[string]int64
	logger *zap.Logger
}

// NewSizeGuard constructs a guard from a byte-limit table. A nil table
// uses the defaults.
func NewSizeGuard(limits map[string]int64, logger *zap.Logger) *SizeGuard {
	if limits == nil {
		limits = DefaultSizeLimits()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SizeGuard{limits: limits, logger: logger}
}

// LimitFor returns the byte limit for a category. Unknown categories fall
// back to the general API limit.
func (g *SizeGuard) LimitFor(limitType string) int64 {
	if g == nil || g.limits == nil {
		return DefaultSizeLimits()[LimitGeneralAPI]
	}
	if limit, ok := g.limits[limitType]; ok {
		return limit
	}
	return g.limits[LimitGeneralAPI]
}

// Validate computes the request's total size and compares it against the
// category limit. Internal failures allow the request through.
func (g *SizeGuard) Validate(r *http.Request, limitType string) SizeReport {
	limit := g.LimitFor(limitType)
	report := SizeReport{LimitType: limitType, SizeLimit: limit}

	size, err := RequestSize(r)
	if err != nil {
		if g != nil && g.logger != nil {
			g.logger.Error("size validation failed open",
				zap.String("limit_type", limitType),
				zap.Error(err))
		}
		report.Allowed = true
		report.FailedOpen = true
		return report
	}
	report.RequestSize = size
	if size > limit {
		report.ExcessSize = size - limit
		return report
	}
	report.Allowed = true
	report.Remaining = limit - size
	return report
}

// RequestSize returns the total byte size of a request: body length,
// encoded query string, header names and values, and any parsed multipart
// file sizes.
func RequestSize(r *http.Request) (int64, error) {
	if r == nil {
		return 0, ErrInvalidInput
	}
	total := int64(0)
	if r.ContentLength > 0 {
		total += r.ContentLength
	}
	if r.URL != nil {
		total += int64(len(r.URL.Query().Encode()))
	}
	for name, values := range r.Header {
		for _, value := range values {
			total += int64(len(name) + len(value))
		}
	}
	if r.MultipartForm != nil {
		for _, files := range r.MultipartForm.File {
			for _, file := range files {
				if file != nil && file.Size > 0 {
					total += file.Size
				}
			}
		}
	}
	return total, nil
}
