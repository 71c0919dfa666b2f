// Package thingsboard reports sync outcomes back to the source platform as
// a device attribute, keyed by the device's own credentials.
package thingsboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"thing-sync/internal/core/sync"

	"github.com/rs/zerolog"
)

const attributeKey = "thing-registry-sync-status"

// Reporter posts the sync status to the platform's HTTP device API.
type Reporter struct {
	apiURL string
	http   *http.Client
	lg     zerolog.Logger
}

func NewReporter(apiURL string, hc *http.Client, lg zerolog.Logger) *Reporter {
	return &Reporter{
		apiURL: apiURL,
		http:   hc,
		lg:     lg.With().Str("adapter", "thingsboard").Logger(),
	}
}

// ReportSyncStatus is fire-and-forget: failures are logged, never returned.
func (r *Reporter) ReportSyncStatus(ctx context.Context, credentials string, status sync.Status, message string) {
	payload := map[string]any{
		attributeKey: map[string]any{
			"ts":      time.Now().UnixMilli(),
			"status":  status,
			"message": message,
		},
	}
	body, _ := json.Marshal(payload)

	u := r.apiURL + "/" + url.PathEscape(credentials) + "/attributes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		r.lg.Warn().Err(err).Msg("build sync status request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		r.lg.Warn().Err(err).Str("status", string(status)).Msg("send sync status")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.lg.Warn().Int("code", resp.StatusCode).Str("status", string(status)).Msg("sync status rejected")
	}
}
