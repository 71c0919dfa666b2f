package events

import (
	"fmt"
	"strings"
)

// Type is the platform message type carried in the event headers.
type Type string

const (
	TypeAttributesUpdated Type = "ATTRIBUTES_UPDATED"
	TypePostAttributes    Type = "POST_ATTRIBUTES_REQUEST"
	TypeEntityAssigned    Type = "ENTITY_ASSIGNED"
	TypeEntityUnassigned  Type = "ENTITY_UNASSIGNED"
	TypeAttributesDeleted Type = "ATTRIBUTES_DELETED"
	TypeEntityDeleted     Type = "ENTITY_DELETED"
)

// IsUpdate reports whether the type requires a full thing description
// regeneration (the update-class events).
func (t Type) IsUpdate() bool {
	switch t {
	case TypeAttributesUpdated, TypePostAttributes, TypeEntityAssigned, TypeEntityUnassigned:
		return true
	}
	return false
}

// Raw is one transport-decoded message: a JSON body plus its header set.
// Header keys are normalized (lowercase, '-' replaced by '_') so that Kafka
// header names and canonicalized HTTP header names classify identically.
type Raw struct {
	Headers map[string]string
	Body    []byte
}

// NormalizeHeaders rewrites header keys into the canonical form the
// classifier expects. Transports call this on whatever header shape their
// protocol delivers.
func NormalizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[strings.ReplaceAll(strings.ToLower(k), "-", "_")] = v
	}
	return out
}

// DeviceEvent is the canonical decoded unit of work.
type DeviceEvent struct {
	Type            Type
	DeviceID        string
	TenantRef       string
	CustomerRef     string
	Credentials     string
	CredentialsType string
	ModelURL        string
	Metadata        map[string]any
}

// ValidationError reports an event missing fields its type requires. Such
// events are dropped without side effects and without retry.
type ValidationError struct {
	Type   Type
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "event has no message type"
	}
	return fmt.Sprintf("event %s missing %s", e.Type, strings.Join(e.Fields, ", "))
}
