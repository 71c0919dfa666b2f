package sync

import (
	"context"

	"thing-sync/internal/core/events"
	"thing-sync/internal/core/td"

	"github.com/rs/zerolog"
)

// RegistryClient is the operation set the reconciler drives. Create and
// Replace failures are mandatory; Delete and Assign are best-effort at the
// call sites below.
type RegistryClient interface {
	Create(ctx context.Context, tenant, customer string, doc *td.Document) error
	Replace(ctx context.Context, tenant, id string, doc *td.Document) error
	Delete(ctx context.Context, tenant, id string) error
	Get(ctx context.Context, tenant, id string) (*td.Document, bool, error)
	Assign(ctx context.Context, id, tenant, customer string) error
}

// Generator produces the thing description for update-class events.
type Generator interface {
	Generate(ctx context.Context, deviceID, modelURL, credentials string, metadata map[string]any) (*td.Document, error)
}

// Options collapse the deployment variants into one reconciler: whether a
// customer-assign step runs after the write, and whether existence is probed
// so the write can branch create-vs-replace instead of delete-then-create.
type Options struct {
	AssignEnabled    bool
	ProbeBeforeWrite bool
}

// Outcome is the terminal result of reconciling one event.
type Outcome string

const (
	OutcomeSynced  Outcome = "synced"
	OutcomeDeleted Outcome = "deleted"
	OutcomeSkipped Outcome = "skipped"
)

// Reconciler converges registry state to the latest device event. It holds
// no mutable state; concurrent use across distinct device ids is safe.
type Reconciler struct {
	gen  Generator
	reg  RegistryClient
	opts Options
	lg   zerolog.Logger
}

func NewReconciler(gen Generator, reg RegistryClient, opts Options, lg zerolog.Logger) *Reconciler {
	return &Reconciler{
		gen:  gen,
		reg:  reg,
		opts: opts,
		lg:   lg.With().Str("component", "reconciler").Logger(),
	}
}

// Apply drives the registry mutations for one classified event. Safe to
// repeat: redelivery of the same event converges to the same registry state.
func (r *Reconciler) Apply(ctx context.Context, ev *events.DeviceEvent) (Outcome, error) {
	switch {
	case ev.Type.IsUpdate():
		return r.applyUpdate(ctx, ev)
	case ev.Type == events.TypeAttributesDeleted:
		return r.applyDelete(ctx, ev.TenantRef, "uri:uuid:"+ev.DeviceID)
	case ev.Type == events.TypeEntityDeleted:
		if ev.DeviceID == "" {
			// Deleted entity was not a device.
			return OutcomeSkipped, nil
		}
		return r.applyDelete(ctx, ev.TenantRef, "uri:uuid:"+ev.DeviceID)
	default:
		r.lg.Debug().Str("type", string(ev.Type)).Msg("event type outside registry concern")
		return OutcomeSkipped, nil
	}
}

// applyUpdate regenerates the thing description and writes it. Ordering is
// externally visible: delete (or probe) happens before create/replace, which
// happens before assign.
func (r *Reconciler) applyUpdate(ctx context.Context, ev *events.DeviceEvent) (Outcome, error) {
	doc, err := r.gen.Generate(ctx, ev.DeviceID, ev.ModelURL, ev.Credentials, ev.Metadata)
	if err != nil {
		return "", err
	}

	if r.opts.ProbeBeforeWrite {
		if err := r.writeProbed(ctx, ev, doc); err != nil {
			return "", err
		}
	} else {
		// Delete-then-create stands in for upsert; a missing record is not
		// an error and a failing delete must not abort the create.
		if err := r.reg.Delete(ctx, ev.TenantRef, doc.ID); err != nil {
			r.lg.Warn().Err(err).Str("thing", doc.ID).Msg("pre-create delete failed")
		}
		if err := r.reg.Create(ctx, ev.TenantRef, ev.CustomerRef, doc); err != nil {
			return "", err
		}
	}

	if r.opts.AssignEnabled {
		// Last write wins; an empty customer ref clears the assignment.
		if err := r.reg.Assign(ctx, doc.ID, ev.TenantRef, ev.CustomerRef); err != nil {
			r.lg.Warn().Err(err).Str("thing", doc.ID).Msg("assign failed")
		}
	}
	return OutcomeSynced, nil
}

func (r *Reconciler) writeProbed(ctx context.Context, ev *events.DeviceEvent, doc *td.Document) error {
	_, exists, err := r.reg.Get(ctx, ev.TenantRef, doc.ID)
	if err != nil {
		// Fall back to the convergent path when the probe is unavailable.
		r.lg.Warn().Err(err).Str("thing", doc.ID).Msg("existence probe failed, falling back to delete-then-create")
		if derr := r.reg.Delete(ctx, ev.TenantRef, doc.ID); derr != nil {
			r.lg.Warn().Err(derr).Str("thing", doc.ID).Msg("pre-create delete failed")
		}
		return r.reg.Create(ctx, ev.TenantRef, ev.CustomerRef, doc)
	}
	if exists {
		return r.reg.Replace(ctx, ev.TenantRef, doc.ID, doc)
	}
	return r.reg.Create(ctx, ev.TenantRef, ev.CustomerRef, doc)
}

func (r *Reconciler) applyDelete(ctx context.Context, tenant, id string) (Outcome, error) {
	// Best-effort: the client already maps "not found" to success, and other
	// delete failures are repaired by redelivery rather than escalated.
	if err := r.reg.Delete(ctx, tenant, id); err != nil {
		r.lg.Warn().Err(err).Str("thing", id).Msg("delete failed")
	}
	return OutcomeDeleted, nil
}
