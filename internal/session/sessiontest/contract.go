// Package sessiontest provides a behavioural contract shared by Store implementations.
package sessiontest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/internal/session"
)

// RunStoreContract exercises Save, Load, Delete and List against store.
func RunStoreContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000000000")

	snap := session.MustSnapshot(
		[]session.Variable{
			{ID: "v1", Name: "protocol", Value: "P-1"},
			{ID: "v2", Name: "count", Value: json.Number("42")},
			{ID: "v3", Name: "unset"},
		},
		[]session.Answer{{VariableID: "v1", Value: "hello"}},
	)

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sessionID, snap))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, snap.Variables(), loaded.Variables())
		assert.Equal(t, snap.Answers(), loaded.Answers())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		updated, ok := session.Apply(snap, []session.Update{{VariableID: "v3", Value: "now set"}})
		require.True(t, ok)
		require.NoError(t, store.Save(ctx, sessionID, updated))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		v, found := loaded.ByID("v3")
		require.True(t, found)
		assert.Equal(t, "now set", v.Value)
	})

	t.Run("List", func(t *testing.T) {
		other := sessionID + "-other"
		require.NoError(t, store.Save(ctx, other, snap))
		defer func() { _ = store.Delete(ctx, other) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
		assert.Contains(t, ids, other)
	})

	t.Run("Any ID", func(t *testing.T) {
		for _, id := range []string{"index", "s:index", "a/b c"} {
			require.NoError(t, store.Save(ctx, id, snap))
		}
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
		for _, id := range []string{"index", "s:index", "a/b c"} {
			assert.Contains(t, ids, id)
			_, err := store.Load(ctx, id)
			assert.NoError(t, err)
			require.NoError(t, store.Delete(ctx, id))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))
		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, ids, sessionID)
	})
}
