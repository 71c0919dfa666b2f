package sync

import (
	"context"
	"errors"

	"thing-sync/internal/core/events"
	"thing-sync/internal/core/journal"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the terminal sync state reported back to the source platform.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// StatusReporter publishes a terminal outcome toward the source platform.
// Fire-and-forget: implementations log their own failures.
type StatusReporter interface {
	ReportSyncStatus(ctx context.Context, credentials string, status Status, message string)
}

// Processor is the event-processing boundary: classify, reconcile, journal,
// report. One Processor handles one event start-to-finish; transports decide
// how many run concurrently.
type Processor struct {
	classifier *events.Classifier
	reconciler *Reconciler
	reporter   StatusReporter
	journal    journal.Store
	lg         zerolog.Logger
}

func NewProcessor(classifier *events.Classifier, reconciler *Reconciler, reporter StatusReporter, store journal.Store, lg zerolog.Logger) *Processor {
	return &Processor{
		classifier: classifier,
		reconciler: reconciler,
		reporter:   reporter,
		journal:    store,
		lg:         lg.With().Str("component", "processor").Logger(),
	}
}

// Process handles one raw event to its terminal outcome. The returned error
// is for the transport's consumption (webhook status mapping); every failure
// is already logged and, when credentials are known, reported upstream.
func (p *Processor) Process(ctx context.Context, raw events.Raw) error {
	ev, err := p.classifier.Classify(raw)
	if err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			// Credentials may be among the missing fields, so no status
			// report goes upstream for rejected events.
			p.lg.Warn().Err(err).Str("event", string(raw.Body)).Msg("rejecting event")
			p.append(ctx, journal.Record{
				ID:        uuid.NewString(),
				EventType: string(verr.Type),
				Outcome:   "rejected",
				Error:     err.Error(),
				RawEvent:  string(raw.Body),
			})
		}
		return err
	}

	outcome, err := p.reconciler.Apply(ctx, ev)
	if err != nil {
		p.lg.Error().Err(err).Str("event", string(raw.Body)).Msg("event processing failed")
		p.append(ctx, record(ev, raw, "error", err))
		if ev.Credentials != "" {
			p.reporter.ReportSyncStatus(ctx, ev.Credentials, StatusError, err.Error())
		}
		return err
	}

	p.lg.Info().
		Str("type", string(ev.Type)).
		Str("device", ev.DeviceID).
		Str("outcome", string(outcome)).
		Msg("event processed")
	p.append(ctx, record(ev, raw, string(outcome), nil))
	if ev.Credentials != "" {
		p.reporter.ReportSyncStatus(ctx, ev.Credentials, StatusSuccess, "successfully synced device")
	}
	return nil
}

func record(ev *events.DeviceEvent, raw events.Raw, outcome string, err error) journal.Record {
	rec := journal.Record{
		ID:        uuid.NewString(),
		EventType: string(ev.Type),
		DeviceID:  ev.DeviceID,
		TenantRef: ev.TenantRef,
		Outcome:   outcome,
		RawEvent:  string(raw.Body),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func (p *Processor) append(ctx context.Context, rec journal.Record) {
	if err := p.journal.Append(ctx, rec); err != nil {
		p.lg.Warn().Err(err).Str("record", rec.ID).Msg("journal append failed")
	}
}
