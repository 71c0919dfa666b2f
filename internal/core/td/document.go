package td

// Document is a W3C Web of Things Thing Description synthesized for one
// device. Constructed fresh on every generation request and never mutated
// after it is handed to the reconciler; the ID is derived from the device id
// and is the reconciliation key.
type Document struct {
	Context             any                       `json:"@context,omitempty"`
	ID                  string                    `json:"id,omitempty"`
	Title               string                    `json:"title,omitempty"`
	Description         string                    `json:"description,omitempty"`
	Category            string                    `json:"category,omitempty"`
	Manufacturer        string                    `json:"manufacturer,omitempty"`
	Model               string                    `json:"model,omitempty"`
	SecurityDefinitions map[string]SecurityScheme `json:"securityDefinitions,omitempty"`
	Security            string                    `json:"security,omitempty"`
	Properties          map[string]*Property      `json:"properties,omitempty"`
	Actions             map[string]*Action        `json:"actions,omitempty"`
	Links               []Link                    `json:"links,omitempty"`
	Forms               []Form                    `json:"forms,omitempty"`
}

type SecurityScheme struct {
	Scheme string `json:"scheme"`
}

// Property is one interaction affordance inherited from the thing model and
// decorated with identity, unit and telemetry forms.
type Property struct {
	AtID        string                 `json:"@id,omitempty"`
	Type        string                 `json:"type,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Unit        string                 `json:"unit,omitempty"`
	Properties  map[string]*DataSchema `json:"properties,omitempty"`
	Forms       []Form                 `json:"forms,omitempty"`
}

// Action is a synthesized history affordance exposing time-ranged reads of
// one property.
type Action struct {
	Description  string                 `json:"description,omitempty"`
	URIVariables map[string]*DataSchema `json:"uriVariables,omitempty"`
	Output       *DataSchema            `json:"output,omitempty"`
	Forms        []Form                 `json:"forms,omitempty"`
}

type DataSchema struct {
	Type       string                 `json:"type,omitempty"`
	Const      any                    `json:"const,omitempty"`
	Items      *DataSchema            `json:"items,omitempty"`
	Properties map[string]*DataSchema `json:"properties,omitempty"`
}

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel,omitempty"`
	Type string `json:"type,omitempty"`
}

type Form struct {
	Href       string   `json:"href"`
	Op         []string `json:"op,omitempty"`
	MethodName string   `json:"htv:methodName,omitempty"`
	Security   string   `json:"security,omitempty"`
}

const thingModelMediaType = "application/tm+json"
