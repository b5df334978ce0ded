package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/auth"
)

func TestLogger_Record_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	err := logger.Record(context.Background(), audit.EventPolicy, "policy.upsert", "/v1/policies", nil)
	require.NoError(t, err)

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, "AUDIT: "))

	// Parse the JSON part
	jsonPart := strings.TrimPrefix(output, "AUDIT: ")
	jsonPart = strings.TrimSpace(jsonPart)

	var event audit.Event
	err = json.Unmarshal([]byte(jsonPart), &event)
	require.NoError(t, err)

	assert.Equal(t, audit.EventPolicy, event.Type)
	assert.Equal(t, "policy.upsert", event.Action)
	assert.Equal(t, "/v1/policies", event.Resource)
	assert.Equal(t, "system", event.RequestID)
	assert.NotEmpty(t, event.ID)
	// UUID format: 8-4-4-4-12
	assert.Len(t, event.ID, 36)
}

func TestLogger_Record_WithMetadata(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	meta := map[string]interface{}{"app_id": "fintech.mobile", "env": "prod"}
	err := logger.Record(context.Background(), audit.EventMutation, "report.upload", "/v1/reports/upload", meta)
	require.NoError(t, err)

	jsonPart := strings.TrimPrefix(buf.String(), "AUDIT: ")
	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &event))

	assert.Equal(t, "fintech.mobile", event.Metadata["app_id"])
}

func TestLogger_Record_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.NewLoggerWithWriter(&buf)

	handler := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, logger.Record(r.Context(), audit.EventAccess, "policy.fetch", "/v1/policies/current", nil))
	}))

	req := httptest.NewRequest("GET", "/v1/policies/current", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	jsonPart := strings.TrimPrefix(buf.String(), "AUDIT: ")
	var event audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &event))
	assert.Equal(t, "req-42", event.RequestID)
}

func TestNopLogger_Discards(t *testing.T) {
	logger := audit.Nop()
	require.NoError(t, logger.Record(context.Background(), audit.EventSystem, "startup", "policyd", nil))
}
