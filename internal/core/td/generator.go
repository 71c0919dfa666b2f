package td

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/rs/zerolog"
)

var (
	// ErrModelFetch marks a thing model that could not be resolved.
	ErrModelFetch = errors.New("thing model fetch failed")
	// ErrModelShape marks a resolved skeleton without a usable properties map.
	ErrModelShape = errors.New("thing model has no properties map")
)

// ModelResolver fetches an abstract thing model by URL and returns a partial
// thing description skeleton.
type ModelResolver interface {
	FetchThingModel(ctx context.Context, modelURL string) (*Document, error)
}

// Endpoints are the platform-side targets spliced into generated forms.
type Endpoints struct {
	HTTPTelemetry string // device HTTP API, POST telemetry
	MQTTTelemetry string // device MQTT broker, telemetry topic
	History       string // time-ranged history query service
	Latest        string // latest-values service
}

// Generator merges a fetched thing model skeleton with per-device
// credentials and free-form metadata into a concrete, dereferenceable thing
// description. Pure apart from the delegated model fetch: identical inputs
// and fetch result yield a byte-identical document.
type Generator struct {
	resolver ModelResolver
	ep       Endpoints
	lg       zerolog.Logger
}

func NewGenerator(resolver ModelResolver, ep Endpoints, lg zerolog.Logger) *Generator {
	return &Generator{
		resolver: resolver,
		ep:       ep,
		lg:       lg.With().Str("component", "generator").Logger(),
	}
}

// Generate builds the thing description for one device.
func (g *Generator) Generate(ctx context.Context, deviceID, modelURL, credentials string, metadata map[string]any) (*Document, error) {
	doc, err := g.resolver.FetchThingModel(ctx, modelURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelFetch, err)
	}
	if doc.Properties == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelShape, modelURL)
	}

	// The resolver emits a self link pointing at the model's declared base
	// rather than the dereferenceable URL the caller fetched it from.
	fixThingModelLink(doc, modelURL)

	doc.ID = "uri:uuid:" + deviceID
	doc.SecurityDefinitions = map[string]SecurityScheme{
		"basic_sc": {Scheme: "basic"},
		"nosec_sc": {Scheme: "nosec"},
	}
	doc.Security = "basic_sc"

	for _, f := range metadataFields {
		if v, ok := metadata[f.key]; ok {
			f.apply(doc, v)
		}
	}

	g.generateProperties(doc, credentials)

	doc.Forms = []Form{{
		Href:       g.ep.Latest + "/" + credentials,
		Op:         []string{"readallproperties"},
		MethodName: "GET",
	}}

	g.lg.Debug().
		Str("thing", doc.ID).
		Int("properties", len(doc.Properties)).
		Int("actions", len(doc.Actions)).
		Msg("thing description generated")
	return doc, nil
}

func fixThingModelLink(doc *Document, modelURL string) {
	for i := range doc.Links {
		if doc.Links[i].Type == thingModelMediaType {
			doc.Links[i].Href = modelURL
			return
		}
	}
	doc.Links = append(doc.Links, Link{Href: modelURL, Rel: "type", Type: thingModelMediaType})
}

// metadataFields maps optional metadata keys to document setters. Link
// entries append in table order: parents before children before icon.
var metadataFields = []struct {
	key   string
	apply func(*Document, any)
}{
	{"title", setString(func(d *Document, s string) { d.Title = s })},
	{"description", setString(func(d *Document, s string) { d.Description = s })},
	{"category", setString(func(d *Document, s string) { d.Category = s })},
	{"manufacturer", setString(func(d *Document, s string) { d.Manufacturer = s })},
	{"model", setString(func(d *Document, s string) { d.Model = s })},
	{"parents", appendThingLinks("collection")},
	{"children", appendThingLinks("item")},
	{"icon", setString(func(d *Document, s string) {
		d.Links = append(d.Links, Link{Href: s, Rel: "icon"})
	})},
	{"units", applyUnits},
}

func setString(assign func(*Document, string)) func(*Document, any) {
	return func(d *Document, v any) {
		if s, ok := v.(string); ok && s != "" {
			assign(d, s)
		}
	}
}

// appendThingLinks turns a metadata array of device references into ordered
// typed links to their thing ids.
func appendThingLinks(rel string) func(*Document, any) {
	return func(d *Document, v any) {
		refs, ok := v.([]any)
		if !ok {
			return
		}
		for _, ref := range refs {
			if s, ok := ref.(string); ok && s != "" {
				d.Links = append(d.Links, Link{Href: "uri:uuid:" + s, Rel: rel})
			}
		}
	}
}

// applyUnits copies per-property units from a metadata object keyed by
// property name.
func applyUnits(d *Document, v any) {
	units, ok := v.(map[string]any)
	if !ok {
		return
	}
	for name, u := range units {
		if s, ok := u.(string); ok {
			if p, ok := d.Properties[name]; ok {
				p.Unit = s
			}
		}
	}
}

// generateProperties decorates every inherited property with a stable
// identifier and telemetry forms, and synthesizes a companion history action
// for properties carrying at least one value field besides the timestamp.
func (g *Generator) generateProperties(doc *Document, credentials string) {
	for name, prop := range doc.Properties {
		prop.AtID = doc.ID + "/properties/" + url.PathEscape(name)
		prop.Forms = []Form{
			{
				Href:       g.ep.HTTPTelemetry + "/api/v1/" + credentials + "/telemetry",
				Op:         []string{"writeproperty"},
				MethodName: "POST",
			},
			{
				Href:     g.ep.MQTTTelemetry + "/v1/devices/me/telemetry",
				Op:       []string{"writeproperty"},
				Security: "basic_sc",
			},
			{
				Href:       g.ep.History + "/" + credentials,
				Op:         []string{"readproperty"},
				MethodName: "GET",
			},
		}

		field, ok := valueField(prop)
		if !ok {
			continue
		}
		if doc.Actions == nil {
			doc.Actions = map[string]*Action{}
		}
		doc.Actions[name] = g.historyAction(name, field, credentials)
	}
}

// valueField picks the property's value sub-field, skipping the timestamp.
// Keys are sorted so the selection is stable across regenerations.
func valueField(prop *Property) (*DataSchema, bool) {
	keys := make([]string, 0, len(prop.Properties))
	for k := range prop.Properties {
		if k != "ts" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	return prop.Properties[keys[0]], true
}

func (g *Generator) historyAction(name string, field *DataSchema, credentials string) *Action {
	return &Action{
		URIVariables: map[string]*DataSchema{
			"property": {Type: "string", Const: name},
			"from":     {Type: "integer"},
			"to":       {Type: "integer"},
		},
		Output: &DataSchema{
			Type: "array",
			Items: &DataSchema{
				Type: "object",
				Properties: map[string]*DataSchema{
					"value": {Type: field.Type},
					"ts":    {Type: "integer"},
				},
			},
		},
		Forms: []Form{{
			Href:       g.ep.History + "/" + credentials,
			Op:         []string{"invokeaction"},
			MethodName: "GET",
		}},
	}
}
