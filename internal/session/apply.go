package session

// Update proposes a new value for an existing variable.
type Update struct {
	VariableID string
	Value      any
}

// Apply merges updates into a copy of snap. Updates naming unknown variables
// are dropped and the last update for an id wins. The returned bool is false,
// and snap is returned as is, when no update matched.
func Apply(snap Snapshot, updates []Update) (Snapshot, bool) {
	var vars []Variable
	for _, u := range updates {
		i, ok := snap.index[u.VariableID]
		if !ok {
			continue
		}
		if vars == nil {
			vars = snap.Variables()
		}
		vars[i].Value = u.Value
	}
	if vars == nil {
		return snap, false
	}
	return Snapshot{
		variables: vars,
		answers:   snap.Answers(),
		index:     snap.index,
	}, true
}
