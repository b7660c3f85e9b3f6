package block

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"flowhook/internal/payload"
	"flowhook/internal/util"
)

type wireMapping struct {
	ID         string `mapstructure:"id"`
	VariableID string `mapstructure:"variableId"`
	BodyPath   string `mapstructure:"bodyPath"`
}

type wireIntegration struct {
	ID     string `mapstructure:"id"`
	URL    string `mapstructure:"url"`
	Method string `mapstructure:"method"`
	Body   any    `mapstructure:"body"`
}

type wireOptions struct {
	ResponseVariableMapping []wireMapping    `mapstructure:"responseVariableMapping"`
	Integration             *wireIntegration `mapstructure:"integration"`
	Blubot                  *wireIntegration `mapstructure:"blubot"`
}

type wireDefinition struct {
	ID                      string        `mapstructure:"id"`
	OutgoingEdgeID          string        `mapstructure:"outgoingEdgeId"`
	IntegrationID           string        `mapstructure:"integrationId"`
	BlubotID                string        `mapstructure:"blubotId"`
	Method                  string        `mapstructure:"method"`
	URL                     string        `mapstructure:"url"`
	Body                    any           `mapstructure:"body"`
	ResponseVariableMapping []wireMapping `mapstructure:"responseVariableMapping"`
	Options                 *wireOptions  `mapstructure:"options"`
}

// bodyPaths lists where a body may live, in precedence order.
var bodyPaths = []string{"body", "options.integration.body", "options.blubot.body"}

// Parse converts a JSON block definition into a Definition. Both the flat
// form {method, url, body, responseVariableMapping} and the nested form
// {options: {blubot: {...}, responseVariableMapping}} are accepted.
func Parse(raw []byte) (Definition, error) {
	if !gjson.ValidBytes(raw) {
		return Definition{}, configErr("", "block definition is not valid JSON", nil)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Definition{}, configErr("", "block definition must be a JSON object", nil)
	}

	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return Definition{}, configErr("", "decode block definition", err)
	}
	def, err := FromMap(m)
	if err != nil {
		return Definition{}, err
	}

	// Keep the object body exactly as authored; FromMap would reorder keys.
	if def.Integration != nil && def.Integration.Body.IsObject() {
		for _, p := range bodyPaths {
			if b := root.Get(p); b.Exists() && b.IsObject() {
				def.Integration.Body = ObjectBody(compact(b.Raw))
				break
			}
		}
	}
	return def, nil
}

// ParseYAML converts a YAML block definition into a Definition.
func ParseYAML(raw []byte) (Definition, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Definition{}, configErr("", "block definition is not valid YAML", err)
	}
	if m == nil {
		return Definition{}, configErr("", "block definition is empty", nil)
	}
	def, err := FromMap(m)
	if err != nil {
		return Definition{}, err
	}

	// Same as Parse: keep the authored key order of an object body.
	if def.Integration != nil && def.Integration.Body.IsObject() {
		var doc yaml.Node
		if err := yaml.Unmarshal(raw, &doc); err == nil && len(doc.Content) == 1 {
			for _, p := range bodyPaths {
				n := yamlLookup(doc.Content[0], strings.Split(p, "."))
				if n == nil || n.Kind != yaml.MappingNode {
					continue
				}
				var buf bytes.Buffer
				if err := writeNodeJSON(&buf, n); err == nil {
					def.Integration.Body = ObjectBody(buf.String())
				}
				break
			}
		}
	}
	return def, nil
}

// yamlLookup follows keys through nested mappings.
func yamlLookup(n *yaml.Node, keys []string) *yaml.Node {
	for _, key := range keys {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
		}
		if n.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == key {
				next = n.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}

// writeNodeJSON encodes n as compact JSON in document order.
func writeNodeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.AliasNode:
		return writeNodeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := payload.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeNodeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNodeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := payload.Marshal(normalize(v))
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

type yamlMapping struct {
	ID         string `yaml:"id"`
	VariableID string `yaml:"variableId,omitempty"`
	BodyPath   string `yaml:"bodyPath,omitempty"`
}

type yamlDefinition struct {
	ID                      string        `yaml:"id,omitempty"`
	OutgoingEdgeID          string        `yaml:"outgoingEdgeId,omitempty"`
	IntegrationID           string        `yaml:"integrationId,omitempty"`
	Method                  string        `yaml:"method,omitempty"`
	URL                     string        `yaml:"url"`
	Body                    *yaml.Node    `yaml:"body,omitempty"`
	ResponseVariableMapping []yamlMapping `yaml:"responseVariableMapping"`
}

// MarshalYAML writes the flat definition form accepted by ParseYAML. Object
// bodies keep their key order.
func MarshalYAML(d Definition) ([]byte, error) {
	w := yamlDefinition{
		ID:                      d.ID,
		OutgoingEdgeID:          d.OutgoingEdgeID,
		IntegrationID:           d.IntegrationID,
		ResponseVariableMapping: []yamlMapping{},
	}
	for _, m := range d.ResponseMapping {
		w.ResponseVariableMapping = append(w.ResponseVariableMapping, yamlMapping(m))
	}
	if d.Integration != nil {
		w.Method = d.Integration.Method
		w.URL = d.Integration.URL
		if w.IntegrationID == "" {
			w.IntegrationID = d.Integration.ID
		}
		body, err := yamlBody(d.Integration.Body)
		if err != nil {
			return nil, err
		}
		w.Body = body
	}
	out, err := yaml.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode block definition: %w", err)
	}
	return out, nil
}

func yamlBody(b Body) (*yaml.Node, error) {
	if b.IsZero() {
		return nil, nil
	}
	if !b.IsObject() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: b.Template()}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(b.Template()), &doc); err != nil {
		return nil, fmt.Errorf("encode block body: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("encode block body: unexpected document shape")
	}
	blockStyle(doc.Content[0])
	return doc.Content[0], nil
}

// blockStyle clears the flow style JSON input parses with.
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// FromMap decodes an untyped block definition. It fails on structural
// problems and unknown methods; missing url or method are left to request.Build.
func FromMap(m map[string]any) (Definition, error) {
	var w wireDefinition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &w,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Definition{}, configErr("", "build decoder", err)
	}
	if err := decoder.Decode(m); err != nil {
		return Definition{}, configErr("", "decode block definition", err)
	}

	def := Definition{
		ID:             w.ID,
		OutgoingEdgeID: w.OutgoingEdgeID,
		IntegrationID:  util.FirstNonEmpty(w.IntegrationID, w.BlubotID),
	}

	mappings := w.ResponseVariableMapping
	var nested *wireIntegration
	if w.Options != nil {
		if len(mappings) == 0 {
			mappings = w.Options.ResponseVariableMapping
		}
		nested = w.Options.Integration
		if nested == nil {
			nested = w.Options.Blubot
		}
	}
	for _, wm := range mappings {
		def.ResponseMapping = append(def.ResponseMapping, ResponseMapping(wm))
	}

	switch {
	case w.URL != "" || w.Method != "" || w.Body != nil:
		integ, err := toIntegration(wireIntegration{ID: def.IntegrationID, URL: w.URL, Method: w.Method, Body: w.Body}, "")
		if err != nil {
			return Definition{}, err
		}
		def.Integration = integ
	case nested != nil:
		integ, err := toIntegration(*nested, "options.integration.")
		if err != nil {
			return Definition{}, err
		}
		def.Integration = integ
		if def.IntegrationID == "" {
			def.IntegrationID = integ.ID
		}
	}
	return def, nil
}

func toIntegration(w wireIntegration, fieldPrefix string) (*Integration, error) {
	method := strings.ToUpper(strings.TrimSpace(w.Method))
	if method != "" && !IsMethod(method) {
		return nil, configErr(fieldPrefix+"method", fmt.Sprintf("unsupported HTTP method '%s'", w.Method), nil)
	}
	body, err := toBody(w.Body)
	if err != nil {
		return nil, configErr(fieldPrefix+"body", "", err)
	}
	return &Integration{
		ID:     w.ID,
		URL:    strings.TrimSpace(w.URL),
		Method: method,
		Body:   body,
	}, nil
}

func toBody(v any) (Body, error) {
	switch b := v.(type) {
	case nil:
		return Body{}, nil
	case string:
		return TextBody(b), nil
	case map[string]any, map[any]any:
		raw, err := payload.Marshal(normalize(b))
		if err != nil {
			return Body{}, err
		}
		return ObjectBody(string(raw)), nil
	default:
		return Body{}, fmt.Errorf("body must be an object or a string, got %T", v)
	}
}

// normalize converts YAML's map[any]any into JSON-encodable maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
