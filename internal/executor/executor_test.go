package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/internal/block"
	"flowhook/internal/metrics"
	"flowhook/internal/payload"
	"flowhook/internal/request"
)

// mockRoundTripper returns canned responses and records requests.
type mockRoundTripper struct {
	response *http.Response
	err      error
	requests []*http.Request
	bodies   []string
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, string(b))
	} else {
		m.bodies = append(m.bodies, "")
	}
	if m.err != nil {
		return nil, m.err
	}
	m.response.Request = req
	return m.response, nil
}

func newMockClient(resp *http.Response, err error) (*http.Client, *mockRoundTripper) {
	rt := &mockRoundTripper{response: resp, err: err}
	return &http.Client{Transport: rt}, rt
}

func newMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func jsonRequest(url string) request.Resolved {
	return request.Resolved{
		URL:         url,
		Method:      http.MethodPost,
		Body:        payload.ParseString(`{"teamId":"abc"}`),
		HasBody:     true,
		ContentType: request.ContentTypeJSON,
	}
}

func TestExecute_Classification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		expectStatus string
		expectDesc   string
		expectJSON   bool
	}{
		{"Success JSON", 200, `{"protocol":"P-1"}`, block.StatusSuccess, DescSuccess, true},
		{"Success Text", 201, `created`, block.StatusSuccess, DescSuccess, false},
		{"Redirect Class Counts As Success", 304, ``, block.StatusSuccess, DescSuccess, false},
		{"Client Error", 404, `{"message":"not found"}`, block.StatusError, DescRemote, true},
		{"Server Error Text", 503, `unavailable`, block.StatusError, DescRemote, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rt := newMockClient(newMockResponse(tt.status, tt.body), nil)
			res, entry := execute(context.Background(), client, jsonRequest("http://api.test/service"))

			require.Len(t, rt.requests, 1, "exactly one attempt")
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, tt.expectJSON, res.Data.IsJSON())
			assert.Equal(t, tt.body, res.Data.String())
			assert.Equal(t, tt.expectStatus, entry.Status)
			assert.Equal(t, tt.expectDesc, entry.Description)

			details, ok := entry.Details.(block.LogDetails)
			require.True(t, ok)
			assert.Equal(t, tt.status, details.StatusCode)
			assert.NotNil(t, details.Request)
			assert.Equal(t, res.Data, details.Response)
		})
	}
}

func TestExecute_SendsJSONBody(t *testing.T) {
	client, rt := newMockClient(newMockResponse(200, `{}`), nil)
	execute(context.Background(), client, jsonRequest("http://api.test/service"))

	require.Len(t, rt.requests, 1)
	assert.Equal(t, "application/json", rt.requests[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"teamId":"abc"}`, rt.bodies[0])
}

func TestExecute_RawBodyHasNoContentType(t *testing.T) {
	client, rt := newMockClient(newMockResponse(200, ``), nil)
	req := request.Resolved{URL: "http://api.test", Method: http.MethodPost, Body: payload.Text("plain"), HasBody: true}
	execute(context.Background(), client, req)

	assert.Empty(t, rt.requests[0].Header.Get("Content-Type"))
	assert.Equal(t, "plain", rt.bodies[0])
}

func TestExecute_TransportFailure(t *testing.T) {
	client, rt := newMockClient(nil, errors.New("dial tcp: connection refused"))
	res, entry := execute(context.Background(), client, jsonRequest("http://unreachable.test"))

	assert.Len(t, rt.requests, 1, "no retry after transport failure")
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, "", res.Data.Get("protocol").String())
	assert.True(t, res.Data.Get("protocol").Exists())
	assert.Contains(t, res.Data.Get("message").String(), "Error from server")
	assert.Contains(t, res.Data.Get("message").String(), "connection refused")

	assert.True(t, entry.IsError())
	assert.Contains(t, entry.Description, "failed")
	details, ok := entry.Details.(block.LogDetails)
	require.True(t, ok)
	assert.Zero(t, details.StatusCode, "transport failures carry no remote status")
	assert.Equal(t, res, details.Response)
}

func TestExecute_UnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	res, entry := execute(context.Background(), &http.Client{Timeout: 2 * time.Second}, jsonRequest(url))
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, "", res.Data.Get("protocol").String())
	assert.Equal(t, DescTransport, entry.Description)
}

func TestExecute_DeadlineExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, entry := execute(ctx, server.Client(), jsonRequest(server.URL))
	assert.Equal(t, 500, res.StatusCode)
	assert.True(t, entry.IsError())
	assert.Contains(t, res.Data.Get("message").String(), "context deadline exceeded")
}

func TestExecute_InvalidURLIsTransportFailure(t *testing.T) {
	client, rt := newMockClient(newMockResponse(200, ""), nil)
	res, entry := execute(context.Background(), client, request.Resolved{URL: "://bad", Method: "GET"})
	assert.Empty(t, rt.requests)
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, DescTransport, entry.Description)
}

func TestExecute_MaxBodyBytes(t *testing.T) {
	client, _ := newMockClient(newMockResponse(200, `{"protocol":"P-1"}`), nil)
	res, _ := New(client, WithMaxBodyBytes(5)).Execute(context.Background(), jsonRequest("http://api.test"))
	assert.Equal(t, `{"pro`, res.Data.String())
	assert.False(t, res.Data.IsJSON())
}

func TestExecute_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	client, _ := newMockClient(newMockResponse(502, "bad gateway"), nil)
	New(client, WithMetrics(m)).Execute(context.Background(), jsonRequest("http://api.test"))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "flowhook_executions_total" {
			for _, metric := range f.GetMetric() {
				if metric.GetLabel()[0].GetValue() == metrics.OutcomeRemote {
					found = true
					assert.Equal(t, 1.0, metric.GetCounter().GetValue())
				}
			}
		}
	}
	assert.True(t, found, "remote error outcome should be counted")
}

func TestResultJSON(t *testing.T) {
	res := Result{StatusCode: 200, Data: payload.ParseString(`{"protocol":"P-1"}`)}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"data":{"protocol":"P-1"}}`, string(b))

	var back Result
	require.NoError(t, json.Unmarshal([]byte(`{"statusCode":404,"data":"missing"}`), &back))
	assert.Equal(t, 404, back.StatusCode)
	assert.True(t, back.IsError())
	assert.Equal(t, "missing", back.Data.String())
}

// execute sends req once with default options.
func execute(ctx context.Context, client Doer, req request.Resolved) (Result, block.LogEntry) {
	return New(client).Execute(ctx, req)
}
