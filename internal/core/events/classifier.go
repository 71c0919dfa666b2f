package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Normalized header keys set by the source platform's rule chain.
const (
	headerMessageType     = "tb_msg_md_messagetype"
	headerOriginatorID    = "tb_msg_md_originatorid"
	headerTenantID        = "tb_msg_md_tenant_id"
	headerTenantName      = "tb_msg_md_tenant_name"
	headerCredentials     = "tb_msg_md_credentials"
	headerCredentialsType = "tb_msg_md_credentialstype"
	headerCustomerID      = "tb_msg_md_customer_id"
)

// Body key aliases, highest priority first. Producers rely on this exact
// order; do not reorder.
var (
	modelURLKeys = []string{"ss_thing-model", "shared_thing-model", "cs_thing-model", "thing-model"}
	metadataKeys = []string{"ss_thing-metadata", "shared_thing-metadata", "cs_thing-metadata", "thing-metadata"}
)

// TenantAddressing selects which header carries the tenant reference. One
// scheme per deployment, never mixed.
type TenantAddressing string

const (
	TenantByID   TenantAddressing = "id"
	TenantByName TenantAddressing = "name"
)

// Classifier validates an inbound event's required fields for its declared
// type and extracts the canonical fields.
type Classifier struct {
	tenantHeader string
	lg           zerolog.Logger
}

func NewClassifier(addressing TenantAddressing, lg zerolog.Logger) *Classifier {
	hdr := headerTenantID
	if addressing == TenantByName {
		hdr = headerTenantName
	}
	return &Classifier{
		tenantHeader: hdr,
		lg:           lg.With().Str("component", "classifier").Logger(),
	}
}

// Classify extracts a DeviceEvent from a raw message, or a ValidationError
// when the message is missing fields its type requires. Event types outside
// this service's concern classify successfully and are skipped downstream.
func (c *Classifier) Classify(raw Raw) (*DeviceEvent, error) {
	msgType := Type(raw.Headers[headerMessageType])
	if msgType == "" {
		return nil, &ValidationError{}
	}

	ev := &DeviceEvent{
		Type:            msgType,
		DeviceID:        raw.Headers[headerOriginatorID],
		TenantRef:       raw.Headers[c.tenantHeader],
		CustomerRef:     raw.Headers[headerCustomerID],
		Credentials:     raw.Headers[headerCredentials],
		CredentialsType: raw.Headers[headerCredentialsType],
		Metadata:        map[string]any{},
	}

	var body map[string]json.RawMessage
	if len(raw.Body) > 0 {
		if err := json.Unmarshal(raw.Body, &body); err != nil {
			c.lg.Debug().Err(err).Msg("event body is not a JSON object")
		}
	}
	ev.ModelURL = firstString(body, modelURLKeys)
	if md := firstObject(body, metadataKeys); md != nil {
		ev.Metadata = md
	}

	switch {
	case msgType.IsUpdate():
		missing := missingFields(map[string]string{
			"thing-model":     ev.ModelURL,
			"originator id":   ev.DeviceID,
			"tenant":          ev.TenantRef,
			"credentials":     ev.Credentials,
			"credentialsType": ev.CredentialsType,
		})
		if len(missing) > 0 {
			return nil, &ValidationError{Type: msgType, Fields: missing}
		}
	case msgType == TypeAttributesDeleted:
		missing := missingFields(map[string]string{
			"originator id": ev.DeviceID,
			"tenant":        ev.TenantRef,
		})
		if len(missing) > 0 {
			return nil, &ValidationError{Type: msgType, Fields: missing}
		}
	case msgType == TypeEntityDeleted:
		if ev.TenantRef == "" {
			return nil, &ValidationError{Type: msgType, Fields: []string{"tenant"}}
		}
		// The thing id comes from the deleted entity reference in the body.
		// Non-device entities leave DeviceID empty and are skipped by the
		// reconciler.
		if ref := entityRef(body); ref.EntityType == "DEVICE" {
			ev.DeviceID = ref.ID
		} else {
			ev.DeviceID = ""
		}
	}

	return ev, nil
}

type entityID struct {
	EntityType string `json:"entityType"`
	ID         string `json:"id"`
}

func entityRef(body map[string]json.RawMessage) entityID {
	var ref entityID
	if v, ok := body["id"]; ok {
		_ = json.Unmarshal(v, &ref)
	}
	return ref
}

// firstString returns the value of the first alias present in the body that
// decodes to a non-empty string.
func firstString(body map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		v, ok := body[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// firstObject returns the first alias present in the body that decodes to a
// JSON object.
func firstObject(body map[string]json.RawMessage, keys []string) map[string]any {
	for _, k := range keys {
		v, ok := body[k]
		if !ok {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(v, &m); err == nil && m != nil {
			return m
		}
	}
	return nil
}

func missingFields(fields map[string]string) []string {
	// Fixed report order keeps log lines stable.
	order := []string{"thing-model", "originator id", "tenant", "credentials", "credentialsType"}
	var missing []string
	for _, name := range order {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
