// Package extract reads response fields into variable updates using a
// restricted path language evaluated by traversal.
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"flowhook/internal/block"
	"flowhook/internal/executor"
	"flowhook/internal/logging"
	"flowhook/internal/payload"
	"flowhook/internal/session"
	"flowhook/internal/template"
)

// Root is the document paths are evaluated against: {"statusCode": N, "data": <body>}.
// A text body becomes a JSON string, so data.<field> never resolves on it.
func Root(res executor.Result) ([]byte, error) {
	b, err := payload.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode execution result: %w", err)
	}
	return b, nil
}

// Lookup evaluates path against root. It returns block.ErrExtractionMiss when
// any step is missing or traverses a value of the wrong type.
func Lookup(root []byte, path Path) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", block.ErrExtractionMiss)
	}
	r := gjson.GetBytes(root, path.gjsonPath())
	if !r.Exists() {
		return nil, fmt.Errorf("%w: %s", block.ErrExtractionMiss, path)
	}
	return decode(r), nil
}

func decode(r gjson.Result) any {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return json.Number(r.Raw)
	}
	// Objects and arrays decode with numbers kept as json.Number.
	return payload.ParseString(r.Raw).Value()
}

// Extract evaluates every active mapping against res, in order. Paths are
// template-resolved first. Mappings that fail to parse or resolve are skipped.
func Extract(res executor.Result, mappings []block.ResponseMapping, snap session.Snapshot) []session.Update {
	root, err := Root(res)
	if err != nil {
		logging.Logf(logging.Warning, "Skipping response mapping: %v", err)
		return nil
	}

	var updates []session.Update
	for _, m := range mappings {
		if !m.Active() {
			continue
		}
		rawPath := template.Resolve(m.BodyPath, snap, template.Options{})
		path, err := ParsePath(rawPath)
		if err != nil {
			logging.Logf(logging.Debug, "Response mapping '%s' for variable '%s' skipped: %v", m.ID, m.VariableID, err)
			continue
		}
		value, err := Lookup(root, path)
		if err != nil {
			logging.Logf(logging.Debug, "Response mapping '%s' for variable '%s' skipped: %v", m.ID, m.VariableID, err)
			continue
		}
		updates = append(updates, session.Update{VariableID: m.VariableID, Value: value})
	}
	return updates
}
