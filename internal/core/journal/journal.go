// Package journal records the terminal outcome of every processed event,
// raw payload included, so failed events can be replayed forensically.
package journal

import (
	"context"
	"time"
)

// Record is one processed event. It includes GORM tags for the postgres
// store and JSON tags for log output.
type Record struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	EventType string    `json:"event_type"`
	DeviceID  string    `json:"device_id,omitempty"`
	TenantRef string    `json:"tenant_ref,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	RawEvent  string    `gorm:"type:text" json:"raw_event,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store appends records. Appends are best-effort from the caller's point of
// view: a failing journal must never fail event processing.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// Nop discards records; used when no journal DSN is configured.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }
