package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"thing-sync/internal/core/events"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type procFunc func(ctx context.Context, raw events.Raw) error

func (f procFunc) Process(ctx context.Context, raw events.Raw) error { return f(ctx, raw) }

func post(t *testing.T, h http.Handler, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleEventSuccess(t *testing.T) {
	var got events.Raw
	h := New(procFunc(func(_ context.Context, raw events.Raw) error {
		got = raw
		return nil
	}), zerolog.Nop())

	rec := post(t, h, map[string]string{
		"Tb-Msg-Md-MessageType": "ATTRIBUTES_UPDATED",
		"Tb-Msg-Md-Tenant-Id":   "tenant-a",
	}, `{"thing-model":"m"}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	// HTTP header names arrive canonicalized; the handler normalizes them
	// into the classifier's key space.
	assert.Equal(t, "ATTRIBUTES_UPDATED", got.Headers["tb_msg_md_messagetype"])
	assert.Equal(t, "tenant-a", got.Headers["tb_msg_md_tenant_id"])
	assert.JSONEq(t, `{"thing-model":"m"}`, string(got.Body))
}

func TestHandleEventValidationFailure(t *testing.T) {
	h := New(procFunc(func(context.Context, events.Raw) error {
		return &events.ValidationError{Type: events.TypeAttributesUpdated, Fields: []string{"thing-model"}}
	}), zerolog.Nop())

	rec := post(t, h, nil, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventProcessingFailure(t *testing.T) {
	h := New(procFunc(func(context.Context, events.Raw) error {
		return assert.AnError
	}), zerolog.Nop())

	rec := post(t, h, nil, `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := New(procFunc(func(context.Context, events.Raw) error { return nil }), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
