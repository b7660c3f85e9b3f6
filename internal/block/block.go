// Package block defines the typed integration block consumed by the pipeline
// and the constructors that turn untyped JSON or YAML input into it.
package block

import (
	"strings"

	"flowhook/internal/payload"
)

// Supported HTTP methods.
var methods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
}

// IsMethod reports whether m, upper-cased, is a supported HTTP method.
func IsMethod(m string) bool {
	return methods[strings.ToUpper(m)]
}

// Definition is one integration block of a flow.
type Definition struct {
	ID              string
	OutgoingEdgeID  string
	IntegrationID   string
	Integration     *Integration
	ResponseMapping []ResponseMapping
}

// Integration is the outbound request template. URL and Method may be empty;
// request.Build rejects them.
type Integration struct {
	ID     string
	URL    string
	Method string
	Body   Body
}

// ResponseMapping copies a response field into a variable.
type ResponseMapping struct {
	ID         string `json:"id"`
	VariableID string `json:"variableId,omitempty"`
	BodyPath   string `json:"bodyPath,omitempty"`
}

// Active reports whether both the variable and the path are set.
func (m ResponseMapping) Active() bool {
	return strings.TrimSpace(m.VariableID) != "" && strings.TrimSpace(m.BodyPath) != ""
}

// Body is a request body template: either a JSON object whose string leaves
// carry placeholders, or a single template string.
type Body struct {
	tmpl   string
	object bool
}

// ObjectBody wraps the JSON text of an object template.
func ObjectBody(raw string) Body {
	return Body{tmpl: raw, object: true}
}

// TextBody wraps a plain template string.
func TextBody(s string) Body {
	return Body{tmpl: s}
}

// Template is the text the Template Resolver runs over.
func (b Body) Template() string { return b.tmpl }

// IsObject reports whether the body is a JSON object template.
func (b Body) IsObject() bool { return b.object }

// IsZero reports whether there is no body at all.
func (b Body) IsZero() bool { return b.tmpl == "" }

// MarshalJSON writes object bodies inline and text bodies as strings.
func (b Body) MarshalJSON() ([]byte, error) {
	switch {
	case b.object:
		return []byte(b.tmpl), nil
	case b.tmpl == "":
		return []byte("null"), nil
	default:
		return payload.Marshal(b.tmpl)
	}
}

type definitionJSON struct {
	ID                      string            `json:"id,omitempty"`
	OutgoingEdgeID          string            `json:"outgoingEdgeId,omitempty"`
	IntegrationID           string            `json:"integrationId,omitempty"`
	Method                  string            `json:"method,omitempty"`
	URL                     string            `json:"url,omitempty"`
	Body                    *Body             `json:"body,omitempty"`
	ResponseVariableMapping []ResponseMapping `json:"responseVariableMapping"`
}

// MarshalJSON writes the flat definition form accepted by Parse.
func (d Definition) MarshalJSON() ([]byte, error) {
	w := definitionJSON{
		ID:                      d.ID,
		OutgoingEdgeID:          d.OutgoingEdgeID,
		IntegrationID:           d.IntegrationID,
		ResponseVariableMapping: d.ResponseMapping,
	}
	if w.ResponseVariableMapping == nil {
		w.ResponseVariableMapping = []ResponseMapping{}
	}
	if d.Integration != nil {
		w.Method = d.Integration.Method
		w.URL = d.Integration.URL
		if !d.Integration.Body.IsZero() {
			body := d.Integration.Body
			w.Body = &body
		}
		if w.IntegrationID == "" {
			w.IntegrationID = d.Integration.ID
		}
	}
	return payload.Marshal(w)
}

// DefaultResponseMapping stores the protocol returned by the routing service.
func DefaultResponseMapping() []ResponseMapping {
	return []ResponseMapping{{ID: "protocol", VariableID: "protocol", BodyPath: "data.protocol"}}
}

// DefaultDefinition is the block a new flow starts from: a POST of the
// routing identifiers, mapping data.protocol into the protocol variable.
func DefaultDefinition(id, url string) Definition {
	return Definition{
		ID:            id,
		IntegrationID: id,
		Integration: &Integration{
			ID:     id,
			URL:    url,
			Method: "POST",
			Body:   ObjectBody(`{"teamId":"","forwardingId":"","attendantId":""}`),
		},
		ResponseMapping: DefaultResponseMapping(),
	}
}
