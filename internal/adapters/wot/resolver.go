// Package wot resolves abstract thing models into partial thing description
// skeletons ready for per-device decoration.
package wot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"thing-sync/internal/core/td"

	"github.com/rs/zerolog"
)

// Resolver fetches thing model documents over HTTP.
type Resolver struct {
	http *http.Client
	lg   zerolog.Logger
}

func NewResolver(hc *http.Client, lg zerolog.Logger) *Resolver {
	return &Resolver{
		http: hc,
		lg:   lg.With().Str("adapter", "wot").Logger(),
	}
}

// thingModel is the fetched document plus the model-level fields that do not
// survive into the skeleton.
type thingModel struct {
	td.Document
	Base string `json:"base"`
}

// FetchThingModel retrieves the model at modelURL and returns it as a
// partial thing description skeleton. The appended self link points at the
// model's declared base (or its embedded id), which is not necessarily the
// URL it was fetched from; the generator rewrites it.
func (r *Resolver) FetchThingModel(ctx context.Context, modelURL string) (*td.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/tm+json, application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", modelURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: unexpected status %d", modelURL, resp.StatusCode)
	}

	var tm thingModel
	if err := json.NewDecoder(resp.Body).Decode(&tm); err != nil {
		return nil, fmt.Errorf("decode %s: %w", modelURL, err)
	}

	skeleton := tm.Document
	self := tm.Base
	if self == "" {
		self = tm.ID
	}
	if self == "" {
		self = modelURL
	}
	skeleton.ID = ""
	skeleton.Links = append(skeleton.Links, td.Link{Href: self, Rel: "type", Type: "application/tm+json"})

	r.lg.Debug().Str("model", modelURL).Int("properties", len(skeleton.Properties)).Msg("thing model resolved")
	return &skeleton, nil
}
