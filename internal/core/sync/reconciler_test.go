package sync

import (
	"context"
	"errors"
	"testing"

	"thing-sync/internal/core/events"
	"thing-sync/internal/core/td"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op       string
	tenant   string
	id       string
	customer string
}

// fakeRegistry records calls and keeps records in memory; delete of an
// absent id succeeds, matching the client's 404 tolerance.
type fakeRegistry struct {
	calls  []call
	things map[string]*td.Document

	createErr error
	deleteErr error
	getErr    error
	assignErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{things: map[string]*td.Document{}}
}

func (f *fakeRegistry) key(tenant, id string) string { return tenant + "/" + id }

func (f *fakeRegistry) Create(_ context.Context, tenant, customer string, doc *td.Document) error {
	f.calls = append(f.calls, call{"create", tenant, doc.ID, customer})
	if f.createErr != nil {
		return f.createErr
	}
	f.things[f.key(tenant, doc.ID)] = doc
	return nil
}

func (f *fakeRegistry) Replace(_ context.Context, tenant, id string, doc *td.Document) error {
	f.calls = append(f.calls, call{op: "replace", tenant: tenant, id: id})
	f.things[f.key(tenant, id)] = doc
	return nil
}

func (f *fakeRegistry) Delete(_ context.Context, tenant, id string) error {
	f.calls = append(f.calls, call{op: "delete", tenant: tenant, id: id})
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.things, f.key(tenant, id))
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, tenant, id string) (*td.Document, bool, error) {
	f.calls = append(f.calls, call{op: "get", tenant: tenant, id: id})
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	doc, ok := f.things[f.key(tenant, id)]
	return doc, ok, nil
}

func (f *fakeRegistry) Assign(_ context.Context, id, tenant, customer string) error {
	f.calls = append(f.calls, call{"assign", tenant, id, customer})
	return f.assignErr
}

func (f *fakeRegistry) ops() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, deviceID, _, _ string, metadata map[string]any) (*td.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	doc := &td.Document{ID: "uri:uuid:" + deviceID}
	if title, ok := metadata["title"].(string); ok {
		doc.Title = title
	}
	return doc, nil
}

func updateEvent() *events.DeviceEvent {
	return &events.DeviceEvent{
		Type:            events.TypeAttributesUpdated,
		DeviceID:        "dev-1",
		TenantRef:       "tenant-a",
		CustomerRef:     "cust-9",
		Credentials:     "tok-123",
		CredentialsType: "ACCESS_TOKEN",
		ModelURL:        "https://models.example/temp.tm.json",
		Metadata:        map[string]any{"title": "Sensor A"},
	}
}

func newReconciler(reg *fakeRegistry, gen Generator, opts Options) *Reconciler {
	return NewReconciler(gen, reg, opts, zerolog.Nop())
}

func TestApplyUpdateDeleteThenCreateThenAssign(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{AssignEnabled: true})

	outcome, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)

	assert.Equal(t, []string{"delete", "create", "assign"}, reg.ops())
	assert.Equal(t, call{"create", "tenant-a", "uri:uuid:dev-1", "cust-9"}, reg.calls[1])
	assert.Equal(t, call{"assign", "tenant-a", "uri:uuid:dev-1", "cust-9"}, reg.calls[2])
	assert.Len(t, reg.things, 1)
}

func TestApplyUpdateIsIdempotentOnRedelivery(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{AssignEnabled: true})

	ev := updateEvent()
	_, err := r.Apply(context.Background(), ev)
	require.NoError(t, err)
	_, err = r.Apply(context.Background(), ev)
	require.NoError(t, err)

	require.Len(t, reg.things, 1)
	assert.Equal(t, "Sensor A", reg.things["tenant-a/uri:uuid:dev-1"].Title)
}

func TestApplyUpdateToleratesDeleteFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.deleteErr = errors.New("registry delete: unexpected status 500")
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	outcome, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Equal(t, []string{"delete", "create"}, reg.ops())
}

func TestApplyUpdatePropagatesCreateFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.createErr = errors.New("registry create: unexpected status 500")
	r := newReconciler(reg, &fakeGenerator{}, Options{AssignEnabled: true})

	_, err := r.Apply(context.Background(), updateEvent())
	require.Error(t, err)
	assert.NotContains(t, reg.ops(), "assign")
}

func TestApplyUpdateToleratesAssignFailure(t *testing.T) {
	reg := newFakeRegistry()
	reg.assignErr = errors.New("registry assign: unexpected status 500")
	r := newReconciler(reg, &fakeGenerator{}, Options{AssignEnabled: true})

	outcome, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
}

func TestApplyUpdateAssignDisabled(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	_, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.NotContains(t, reg.ops(), "assign")
}

func TestApplyUpdateProbeCreatesWhenAbsent(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{ProbeBeforeWrite: true})

	_, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "create"}, reg.ops())
}

func TestApplyUpdateProbeReplacesWhenPresent(t *testing.T) {
	reg := newFakeRegistry()
	reg.things["tenant-a/uri:uuid:dev-1"] = &td.Document{ID: "uri:uuid:dev-1", Title: "stale"}
	r := newReconciler(reg, &fakeGenerator{}, Options{ProbeBeforeWrite: true})

	_, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "replace"}, reg.ops())
	assert.Equal(t, "Sensor A", reg.things["tenant-a/uri:uuid:dev-1"].Title)
}

func TestApplyUpdateProbeFailureFallsBack(t *testing.T) {
	reg := newFakeRegistry()
	reg.getErr = errors.New("registry get: unexpected status 503")
	r := newReconciler(reg, &fakeGenerator{}, Options{ProbeBeforeWrite: true})

	_, err := r.Apply(context.Background(), updateEvent())
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "delete", "create"}, reg.ops())
}

func TestApplyUpdatePropagatesGenerateFailure(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{err: errors.New("model gone")}, Options{})

	_, err := r.Apply(context.Background(), updateEvent())
	require.Error(t, err)
	assert.Empty(t, reg.calls)
}

func TestApplyAttributesDeleted(t *testing.T) {
	reg := newFakeRegistry()
	reg.things["tenant-a/uri:uuid:dev-1"] = &td.Document{ID: "uri:uuid:dev-1"}
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	outcome, err := r.Apply(context.Background(), &events.DeviceEvent{
		Type:      events.TypeAttributesDeleted,
		DeviceID:  "dev-1",
		TenantRef: "tenant-a",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.Equal(t, []string{"delete"}, reg.ops())
	assert.Empty(t, reg.things)
}

func TestApplyDeleteOfAbsentThingIsNoop(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	outcome, err := r.Apply(context.Background(), &events.DeviceEvent{
		Type:      events.TypeAttributesDeleted,
		DeviceID:  "ghost",
		TenantRef: "tenant-a",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
}

func TestApplyEntityDeleted(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	outcome, err := r.Apply(context.Background(), &events.DeviceEvent{
		Type:      events.TypeEntityDeleted,
		DeviceID:  "dev-1",
		TenantRef: "tenant-a",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)
	assert.Equal(t, []call{{op: "delete", tenant: "tenant-a", id: "uri:uuid:dev-1"}}, reg.calls)
}

func TestApplyEntityDeletedNonDeviceSkips(t *testing.T) {
	reg := newFakeRegistry()
	r := newReconciler(reg, &fakeGenerator{}, Options{})

	outcome, err := r.Apply(context.Background(), &events.DeviceEvent{
		Type:      events.TypeEntityDeleted,
		TenantRef: "tenant-a",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, reg.calls)
}

func TestApplyUnknownTypeSkips(t *testing.T) {
	reg := newFakeRegistry()
	gen := &fakeGenerator{}
	r := newReconciler(reg, gen, Options{})

	outcome, err := r.Apply(context.Background(), &events.DeviceEvent{Type: "RPC_CALL_FROM_SERVER_TO_DEVICE"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, reg.calls)
	assert.Zero(t, gen.calls)
}
