package httptransport_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"requestguard/internal/requestguard/core"
	httptransport "requestguard/internal/requestguard/transport/http"
)

func TestNewErrorEnvelope(t *testing.T) {
	env := httptransport.NewErrorEnvelope(core.CodeRateLimitExceeded, "slow down", map[string]any{"limit": 10})

	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "slow down", env.Error.Message)
	assert.Equal(t, 10, env.Error.Details["limit"])
	assert.Equal(t, "v1", env.Meta.Version)
	assert.Equal(t, env.Error.Timestamp, env.Meta.Timestamp)

	_, err := uuid.Parse(env.Meta.RequestID)
	assert.NoError(t, err, "request id must be a uuid")

	_, err = time.Parse(time.RFC3339, env.Meta.Timestamp)
	assert.NoError(t, err, "timestamp must be RFC3339")
}

func TestErrorEnvelope_JSONShape(t *testing.T) {
	env := httptransport.NewErrorEnvelope(core.CodeSecurityThreat, "blocked", nil)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "error")
	assert.Contains(t, decoded, "meta")
	assert.Equal(t, "SECURITY_THREAT_DETECTED", decoded["error"]["code"])
	assert.Contains(t, decoded["meta"], "request_id")
}

func TestEnvelope_DistinctRequestIDs(t *testing.T) {
	a := httptransport.NewErrorEnvelope(core.CodeInvalidInput, "bad", nil)
	b := httptransport.NewErrorEnvelope(core.CodeInvalidInput, "bad", nil)
	assert.NotEqual(t, a.Meta.RequestID, b.Meta.RequestID)
}
