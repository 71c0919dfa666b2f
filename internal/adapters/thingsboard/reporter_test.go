package thingsboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"thing-sync/internal/core/sync"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportSyncStatus(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewReporter(srv.URL+"/api/v1", srv.Client(), zerolog.Nop())
	r.ReportSyncStatus(context.Background(), "tok-123", sync.StatusSuccess, "successfully synced device")

	assert.Equal(t, "/api/v1/tok-123/attributes", gotPath)

	var payload map[string]struct {
		TS      int64  `json:"ts"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	attr, ok := payload["thing-registry-sync-status"]
	require.True(t, ok)
	assert.Equal(t, "SUCCESS", attr.Status)
	assert.Equal(t, "successfully synced device", attr.Message)
	assert.NotZero(t, attr.TS)
}

func TestReportSyncStatusSwallowsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewReporter(srv.URL+"/api/v1", srv.Client(), zerolog.Nop())
	// Must not panic or surface the failure.
	r.ReportSyncStatus(context.Background(), "bad-token", sync.StatusError, "model fetch failed")
}

func TestReportSyncStatusSwallowsTransportError(t *testing.T) {
	r := NewReporter("http://127.0.0.1:1/api/v1", &http.Client{}, zerolog.Nop())
	r.ReportSyncStatus(context.Background(), "tok-123", sync.StatusError, "unreachable")
}
