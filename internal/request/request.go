// Package request turns an integration template and a session snapshot into
// a finished outbound request.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"flowhook/internal/block"
	"flowhook/internal/logging"
	"flowhook/internal/payload"
	"flowhook/internal/session"
	"flowhook/internal/template"
	"flowhook/internal/util"
)

// ContentTypeJSON is declared for bodies that parse as JSON.
const ContentTypeJSON = "application/json"

// Resolved is a fully resolved request. It is built once per invocation.
type Resolved struct {
	URL         string
	Method      string
	Body        payload.Payload
	HasBody     bool
	ContentType string
}

// Build resolves integ against snap. It fails only when the URL or method is missing.
func Build(integ block.Integration, snap session.Snapshot) (Resolved, error) {
	if strings.TrimSpace(integ.URL) == "" {
		return Resolved{}, &block.ConfigurationError{Field: "url", Reason: "missing"}
	}
	if strings.TrimSpace(integ.Method) == "" {
		return Resolved{}, &block.ConfigurationError{Field: "method", Reason: "missing"}
	}

	req := Resolved{
		URL:    strings.TrimSpace(template.Resolve(integ.URL, snap, template.Options{})),
		Method: strings.ToUpper(integ.Method),
	}
	if util.IsBodylessMethod(req.Method) || integ.Body.IsZero() {
		return req, nil
	}

	// Object bodies and text bodies that are themselves JSON documents are
	// resolved JSON-aware; plain text keeps substituted values verbatim.
	tmpl := integ.Body.Template()
	opts := template.Options{InsideJSON: integ.Body.IsObject() || payload.ParseString(tmpl).IsJSON()}
	resolved := template.ResolveBody(tmpl, snap, opts)
	if resolved == "" {
		return req, nil
	}
	req.Body = payload.ParseString(resolved)
	req.HasBody = true
	if req.Body.IsJSON() {
		req.ContentType = ContentTypeJSON
	} else {
		logging.Logf(logging.Debug, "Request body for %s %s: %v, sending as raw text", req.Method, req.URL, block.ErrTemplate)
	}
	return req, nil
}

// NewHTTPRequest creates the *http.Request for r.
func (r Resolved) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if r.HasBody {
		body = bytes.NewReader(r.Body.Bytes())
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request %s %s: %w", r.Method, r.URL, err)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	return req, nil
}

// LogView is the request as shown in log entry details.
type LogView struct {
	URL         string           `json:"url"`
	Method      string           `json:"method"`
	JSON        *payload.Payload `json:"json,omitempty"`
	Body        *payload.Payload `json:"body,omitempty"`
	ContentType string           `json:"contentType,omitempty"`
}

// View returns the log representation: JSON bodies under "json", raw bodies under "body".
func (r Resolved) View() LogView {
	v := LogView{URL: r.URL, Method: r.Method, ContentType: r.ContentType}
	if r.HasBody {
		body := r.Body
		if body.IsJSON() {
			v.JSON = &body
		} else {
			v.Body = &body
		}
	}
	return v
}
