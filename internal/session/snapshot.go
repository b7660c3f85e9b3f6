// Package session holds the conversation's variable store: an ordered set of
// variables plus the recorded answers, exposed as immutable snapshots.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"flowhook/internal/payload"
)

// Variable is a named slot in the conversation state. A nil Value means unset.
type Variable struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// Answer is a recorded answer targeting a variable.
type Answer struct {
	VariableID string `json:"variableId"`
	Value      any    `json:"value,omitempty"`
}

// Snapshot is an immutable view of variables and answers. Every mutation
// returns a new Snapshot; values held by callers remain valid.
type Snapshot struct {
	variables []Variable
	answers   []Answer
	index     map[string]int
}

// NewSnapshot copies vars and answers into a snapshot. Variable ids must be
// non-empty and unique.
func NewSnapshot(vars []Variable, answers []Answer) (Snapshot, error) {
	index := make(map[string]int, len(vars))
	for i, v := range vars {
		if strings.TrimSpace(v.ID) == "" {
			return Snapshot{}, fmt.Errorf("variable at position %d has an empty id", i)
		}
		if _, dup := index[v.ID]; dup {
			return Snapshot{}, fmt.Errorf("duplicate variable id '%s'", v.ID)
		}
		index[v.ID] = i
	}
	return Snapshot{
		variables: append([]Variable(nil), vars...),
		answers:   append([]Answer(nil), answers...),
		index:     index,
	}, nil
}

// MustSnapshot is NewSnapshot that panics on invalid input. Intended for tests and literals.
func MustSnapshot(vars []Variable, answers []Answer) Snapshot {
	s, err := NewSnapshot(vars, answers)
	if err != nil {
		panic(err)
	}
	return s
}

// Variables returns a copy of the variables in declaration order.
func (s Snapshot) Variables() []Variable {
	return append([]Variable(nil), s.variables...)
}

// Answers returns a copy of the recorded answers.
func (s Snapshot) Answers() []Answer {
	return append([]Answer(nil), s.answers...)
}

// Len is the number of variables.
func (s Snapshot) Len() int { return len(s.variables) }

// ByID returns the variable with the given id.
func (s Snapshot) ByID(id string) (Variable, bool) {
	i, ok := s.index[id]
	if !ok {
		return Variable{}, false
	}
	return s.variables[i], true
}

// Lookup finds a variable by id, then by name. ident is trimmed first.
func (s Snapshot) Lookup(ident string) (Variable, bool) {
	ident = strings.TrimSpace(ident)
	if v, ok := s.ByID(ident); ok {
		return v, true
	}
	for _, v := range s.variables {
		if v.Name == ident {
			return v, true
		}
	}
	return Variable{}, false
}

// AnswersByName keys the answer history by the name of the targeted
// variable. Answers for unknown variables keep their raw id as key; later
// answers overwrite earlier ones.
func (s Snapshot) AnswersByName() map[string]any {
	out := make(map[string]any, len(s.answers))
	for _, a := range s.answers {
		key := a.VariableID
		if v, ok := s.ByID(a.VariableID); ok && v.Name != "" {
			key = v.Name
		}
		out[key] = a.Value
	}
	return out
}

type snapshotJSON struct {
	Variables []Variable `json:"variables"`
	Answers   []Answer   `json:"answers"`
}

// MarshalJSON encodes {variables, answers}; empty lists are written as [].
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotJSON{Variables: s.variables, Answers: s.answers}
	if w.Variables == nil {
		w.Variables = []Variable{}
	}
	if w.Answers == nil {
		w.Answers = []Answer{}
	}
	return payload.Marshal(w)
}

// UnmarshalJSON decodes {variables, answers}, keeping numbers as json.Number.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("decode session snapshot: %w", err)
	}
	snap, err := NewSnapshot(w.Variables, w.Answers)
	if err != nil {
		return fmt.Errorf("decode session snapshot: %w", err)
	}
	*s = snap
	return nil
}
