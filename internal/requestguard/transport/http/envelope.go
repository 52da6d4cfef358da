// Package httptransport provides the HTTP middleware glue for the guards.
package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"requestguard/internal/requestguard/core"
)

// envelopeVersion is the error envelope schema version.
const envelopeVersion = "v1"

// ErrorBody is the error half of a rejection envelope.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp string         `json:"timestamp"`
}

// Meta is the envelope metadata half.
type Meta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	RequestID string `json:"request_id"`
}

// ErrorEnvelope is the rejection payload shared by all three guards.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
	Meta  Meta      `json:"meta"`
}

// NewErrorEnvelope builds an envelope with a fresh request id.
func NewErrorEnvelope(code core.ErrorCode, message string, details map[string]any) ErrorEnvelope {
	now := time.Now().UTC().Format(time.RFC3339)
	return ErrorEnvelope{
		Error: ErrorBody{
			Code:      string(code),
			Message:   message,
			Details:   details,
			Timestamp: now,
		},
		Meta: Meta{
			Timestamp: now,
			Version:   envelopeVersion,
			RequestID: uuid.NewString(),
		},
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
