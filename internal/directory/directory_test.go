package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/internal/config"
)

func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/teams", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`[{"id":"t1","description":"Sales"},{"id":"t2","description":"Support"}]`))
	})
	mux.HandleFunc("/forwardings", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"f1","description":"Atendente especifico"},{"id":"f2","description":"Fila"}]`))
	})
	mux.HandleFunc("/teams/t1/attendants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"a1","name":"Ana","teamId":"t1"}]`))
	})
	mux.HandleFunc("/teams/broken/attendants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Lists(t *testing.T) {
	server := newDirectoryServer(t)
	c := NewClientWithHTTP(server.URL+"/", server.Client())
	ctx := context.Background()

	teams, err := c.ListTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Team{{ID: "t1", Description: "Sales"}, {ID: "t2", Description: "Support"}}, teams)

	forwardings, err := c.ListForwardings(ctx)
	require.NoError(t, err)
	require.Len(t, forwardings, 2)
	assert.True(t, forwardings[0].RequiresAttendant())
	assert.False(t, forwardings[1].RequiresAttendant())

	attendants, err := c.ListAttendants(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []Attendant{{ID: "a1", Name: "Ana", TeamID: "t1"}}, attendants)
}

func TestClient_Errors(t *testing.T) {
	server := newDirectoryServer(t)
	c := NewClientWithHTTP(server.URL, server.Client())
	ctx := context.Background()

	_, err := c.ListAttendants(ctx, "unknown")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.ListAttendants(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")

	_, err = c.ListAttendants(ctx, "  ")
	assert.EqualError(t, err, "team id is required")
}

func TestClient_ResponseTooLarge(t *testing.T) {
	server := newDirectoryServer(t)
	c := NewClientWithHTTP(server.URL, server.Client())
	c.maxBytes = 16

	_, err := c.ListTeams(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	c.maxBytes = MaxResponseBytes
	_, err = c.ListTeams(context.Background())
	assert.NoError(t, err)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(&config.DirectoryConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)

	c, err := NewClient(&config.DirectoryConfig{BaseURL: "https://directory.example.com/api/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://directory.example.com/api", c.baseURL)
	assert.Equal(t, float64(config.DefaultDirectoryTimeoutSeconds), c.http.Timeout.Seconds())
}
