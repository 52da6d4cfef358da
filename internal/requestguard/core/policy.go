// Package core provides the static guard policy tables.
package core

import "time"

// Limit type categories shared by the size and rate tables.
const (
	LimitGeneralAPI        = "general_api"
	LimitAuthentication    = "api_authentication"
	LimitFileUpload        = "file_upload"
	LimitBulkCreate        = "bulk_create"
	LimitBulkUpdate        = "bulk_update"
	LimitBulkDelete        = "bulk_delete"
	LimitBulkPurge         = "bulk_purge"
	LimitTicketAttachments = "file_upload_ticket_attachments"
	LimitKBMedia           = "file_upload_kb_media"
	LimitAvatarUpload      = "file_upload_avatar"
)

const (
	mb = int64(1) << 20

	maxBurstWindow = 5 * time.Minute
)

// RatePolicy describes one rate limit category.
type RatePolicy struct {
	Requests int64         `json:"requests"`
	Window   time.Duration `json:"window"`
	Burst    int64         `json:"burst"`
}

// BurstWindow returns the burst sub-window for the policy. The sub-window
// is one tenth of the main window, capped at five minutes and floored at
// one second.
func (p RatePolicy) BurstWindow() time.Duration {
	window := p.Window / 10
	if window > maxBurstWindow {
		window = maxBurstWindow
	}
	if window < time.Second {
		window = time.Second
	}
	return window
}

// DefaultSizeLimits returns the byte limit per category. The tables are
// immutable configuration; callers must not mutate the returned map.
func DefaultSizeLimits() map[string]int64 {
	return map[string]int64{
		LimitGeneralAPI:        10 * mb,
		LimitAuthentication:    1 * mb,
		LimitFileUpload:        100 * mb,
		LimitBulkCreate:        50 * mb,
		LimitBulkUpdate:        25 * mb,
		LimitBulkDelete:        10 * mb,
		LimitBulkPurge:         10 * mb,
		LimitTicketAttachments: 10 * mb,
		LimitKBMedia:           50 * mb,
		LimitAvatarUpload:      2 * mb,
	}
}

// DefaultRatePolicies returns the base request policy per category.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		LimitGeneralAPI:     {Requests: 1000, Window: time.Hour, Burst: 2000},
		LimitAuthentication: {Requests: 10, Window: time.Minute, Burst: 20},
		LimitBulkCreate:     {Requests: 50, Window: time.Hour, Burst: 100},
		LimitBulkUpdate:     {Requests: 30, Window: time.Hour, Burst: 60},
		LimitBulkDelete:     {Requests: 10, Window: time.Hour, Burst: 20},
		LimitBulkPurge:      {Requests: 3, Window: time.Hour, Burst: 6},
	}
}

// MostRestrictiveScale composes the load-based and size-based adaptive
// factors. The composition rule is most-restrictive-wins: the smaller of
// the two factors applies.
func MostRestrictiveScale(systemLoad float64, requestSize int64) float64 {
	loadScale := 1.0
	switch {
	case systemLoad > 0.8:
		loadScale = 0.5
	case systemLoad > 0.6:
		loadScale = 0.7
	}
	sizeScale := 1.0
	switch {
	case requestSize > 10*mb:
		sizeScale = 0.5
	case requestSize > 5*mb:
		sizeScale = 0.7
	}
	if sizeScale < loadScale {
		return sizeScale
	}
	return loadScale
}
