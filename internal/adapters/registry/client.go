// Package registry wraps the remote thing registry's HTTP surface. The
// client is stateless and retry-free: redelivery above it is the retry
// policy, and deadlines belong to the injected http.Client.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"thing-sync/internal/core/td"

	"github.com/rs/zerolog"
)

// Addressing selects how the tenant reaches the registry: as a path segment
// or as a request header. One mode per deployment, never mixed.
type Addressing string

const (
	AddressByPath   Addressing = "path"
	AddressByHeader Addressing = "header"
)

// Error is a non-2xx registry response.
type Error struct {
	Op     string
	Status int
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry %s: unexpected status %d", e.Op, e.Status)
}

type Config struct {
	BaseURL    string
	Addressing Addressing
	// TenantHeader names the header carrying the tenant reference in
	// header-addressing mode (x-tenant-id or x-tenant-name).
	TenantHeader string
}

type Client struct {
	cfg  Config
	http *http.Client
	lg   zerolog.Logger
}

func New(cfg Config, hc *http.Client, lg zerolog.Logger) *Client {
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = "x-tenant-id"
	}
	return &Client{
		cfg:  cfg,
		http: hc,
		lg:   lg.With().Str("adapter", "registry").Logger(),
	}
}

// Create registers a new thing description under the tenant, optionally
// scoped to a customer.
func (c *Client) Create(ctx context.Context, tenant, customer string, doc *td.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode thing description: %w", err)
	}
	req, err := c.request(ctx, http.MethodPost, c.thingsURL(tenant), tenant, body)
	if err != nil {
		return err
	}
	if customer != "" {
		req.Header.Set("x-customer-id", customer)
	}
	return c.do(req, "create", nil)
}

// Replace overwrites the thing description stored at id.
func (c *Client) Replace(ctx context.Context, tenant, id string, doc *td.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode thing description: %w", err)
	}
	req, err := c.request(ctx, http.MethodPut, c.thingURL(tenant, id), tenant, body)
	if err != nil {
		return err
	}
	return c.do(req, "replace", nil)
}

// Delete removes the thing at id. An absent id is a no-op outcome, not an
// error.
func (c *Client) Delete(ctx context.Context, tenant, id string) error {
	req, err := c.request(ctx, http.MethodDelete, c.thingURL(tenant, id), tenant, nil)
	if err != nil {
		return err
	}
	err = c.do(req, "delete", nil)
	var rerr *Error
	if errors.As(err, &rerr) && rerr.Status == http.StatusNotFound {
		c.lg.Debug().Str("thing", id).Msg("delete of absent thing")
		return nil
	}
	return err
}

// Get fetches the thing at id; absence is reported via the bool, not an
// error.
func (c *Client) Get(ctx context.Context, tenant, id string) (*td.Document, bool, error) {
	req, err := c.request(ctx, http.MethodGet, c.thingURL(tenant, id), tenant, nil)
	if err != nil {
		return nil, false, err
	}
	var doc td.Document
	err = c.do(req, "get", &doc)
	var rerr *Error
	if errors.As(err, &rerr) && rerr.Status == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}

// Assign binds the thing to a customer; an empty customer clears the
// assignment.
func (c *Client) Assign(ctx context.Context, id, tenant, customer string) error {
	payload := map[string]any{"customerId": nil}
	if customer != "" {
		payload["customerId"] = customer
	}
	body, _ := json.Marshal(payload)
	req, err := c.request(ctx, http.MethodPost, c.thingURL(tenant, id)+"/assign", tenant, body)
	if err != nil {
		return err
	}
	return c.do(req, "assign", nil)
}

func (c *Client) thingsURL(tenant string) string {
	if c.cfg.Addressing == AddressByPath {
		return c.cfg.BaseURL + "/" + url.PathEscape(tenant) + "/things"
	}
	return c.cfg.BaseURL + "/things"
}

func (c *Client) thingURL(tenant, id string) string {
	return c.thingsURL(tenant) + "/" + url.PathEscape(id)
}

func (c *Client) request(ctx context.Context, method, u, tenant string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Addressing == AddressByHeader {
		req.Header.Set(c.cfg.TenantHeader, tenant)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.lg.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("registry call failed")
		return &Error{Op: op, Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("registry %s: decode response: %w", op, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}
