package request

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/internal/block"
	"flowhook/internal/session"
)

func snap() session.Snapshot {
	return session.MustSnapshot(
		[]session.Variable{
			{ID: "v1", Name: "teamId", Value: "abc"},
			{ID: "v2", Name: "note", Value: "plain words"},
			{ID: "v3", Name: "host", Value: "api.example.com"},
		},
		[]session.Answer{{VariableID: "v1", Value: "abc"}},
	)
}

func TestBuild_MissingFields(t *testing.T) {
	_, err := Build(block.Integration{Method: "POST"}, snap())
	var cfgErr *block.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "url", cfgErr.Field)

	_, err = Build(block.Integration{URL: "https://x.test"}, snap())
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "method", cfgErr.Field)
}

func TestBuild_JSONBodyRoundTrip(t *testing.T) {
	req, err := Build(block.Integration{
		URL:    "https://{{host}}/teams",
		Method: "post",
		Body:   block.ObjectBody(`{"team":"{{teamId}}"}`),
	}, snap())
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/teams", req.URL)
	assert.Equal(t, "POST", req.Method)
	assert.True(t, req.HasBody)
	assert.True(t, req.Body.IsJSON())
	assert.JSONEq(t, `{"team":"abc"}`, req.Body.String())
	assert.Equal(t, ContentTypeJSON, req.ContentType)
}

func TestBuild_RawBody(t *testing.T) {
	req, err := Build(block.Integration{
		URL:    "https://x.test",
		Method: "POST",
		Body:   block.TextBody("hello {{teamId}}"),
	}, snap())
	require.NoError(t, err)
	assert.True(t, req.HasBody)
	assert.False(t, req.Body.IsJSON())
	assert.Equal(t, "hello abc", req.Body.String())
	assert.Empty(t, req.ContentType)
}

func TestBuild_TextBodyKeepsSpecialCharacters(t *testing.T) {
	s := session.MustSnapshot([]session.Variable{{ID: "msg", Name: "msg", Value: "say \"hi\"\nbye"}}, nil)

	req, err := Build(block.Integration{
		URL:    "https://x.test",
		Method: "POST",
		Body:   block.TextBody("Message: {{msg}}"),
	}, s)
	require.NoError(t, err)
	assert.False(t, req.Body.IsJSON())
	assert.Empty(t, req.ContentType)
	assert.Equal(t, "Message: say \"hi\"\nbye", req.Body.String())

	// A text template holding a JSON document is still escaped.
	req, err = Build(block.Integration{
		URL:    "https://x.test",
		Method: "POST",
		Body:   block.TextBody(`{"text":"{{msg}}"}`),
	}, s)
	require.NoError(t, err)
	require.True(t, req.Body.IsJSON())
	assert.Equal(t, ContentTypeJSON, req.ContentType)
	assert.Equal(t, "say \"hi\"\nbye", req.Body.Get("text").String())
}

func TestBuild_SingleVariableBody(t *testing.T) {
	req, err := Build(block.Integration{URL: "https://x.test", Method: "POST", Body: block.TextBody("{{note}}")}, snap())
	require.NoError(t, err)
	assert.Equal(t, "plain words", req.Body.String())
	assert.Empty(t, req.ContentType)
}

func TestBuild_StateBody(t *testing.T) {
	req, err := Build(block.Integration{URL: "https://x.test", Method: "POST", Body: block.TextBody("{{state}}")}, snap())
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, req.ContentType)
	assert.JSONEq(t, `{"teamId":"abc"}`, req.Body.String())
}

func TestBuild_BodylessMethods(t *testing.T) {
	for _, method := range []string{"GET", "head"} {
		req, err := Build(block.Integration{URL: "https://x.test", Method: method, Body: block.ObjectBody(`{"a":"{{teamId}}"}`)}, snap())
		require.NoError(t, err)
		assert.False(t, req.HasBody, method)
		assert.Empty(t, req.ContentType, method)
	}
}

func TestBuild_EmptyResolvedBodyOmitted(t *testing.T) {
	req, err := Build(block.Integration{URL: "https://x.test", Method: "POST", Body: block.TextBody("{{missing}}")}, snap())
	require.NoError(t, err)
	assert.False(t, req.HasBody)
}

func TestNewHTTPRequest(t *testing.T) {
	req, err := Build(block.Integration{URL: "https://x.test/a", Method: "PUT", Body: block.ObjectBody(`{"k":"{{teamId}}"}`)}, snap())
	require.NoError(t, err)

	httpReq, err := req.NewHTTPRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PUT", httpReq.Method)
	assert.Equal(t, ContentTypeJSON, httpReq.Header.Get("Content-Type"))
	assert.Empty(t, httpReq.Header.Get("Authorization"))
	b, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"abc"}`, string(b))

	_, err = Resolved{URL: "://bad", Method: "GET"}.NewHTTPRequest(context.Background())
	assert.Error(t, err)
}

func TestView(t *testing.T) {
	jsonReq, _ := Build(block.Integration{URL: "https://x.test", Method: "POST", Body: block.ObjectBody(`{"a":"b"}`)}, snap())
	b, err := json.Marshal(jsonReq.View())
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://x.test","method":"POST","json":{"a":"b"},"contentType":"application/json"}`, string(b))

	rawReq, _ := Build(block.Integration{URL: "https://x.test", Method: "POST", Body: block.TextBody("raw")}, snap())
	b, err = json.Marshal(rawReq.View())
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://x.test","method":"POST","body":"raw"}`, string(b))
}
