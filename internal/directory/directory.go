// Package directory reads the routing directory an integration block targets:
// teams, forwarding rules and the attendants of a team.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowhook/internal/config"
	"flowhook/internal/httpclient"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
	"flowhook/internal/util"
)

// SpecificAttendantDescription marks the forwarding rule that routes to one
// chosen attendant; only then is an attendant id meaningful.
const SpecificAttendantDescription = "Atendente especifico"

// MaxResponseBytes caps how much of a directory response is read.
const MaxResponseBytes = 4 << 20

// ErrNotConfigured is returned when no directory base URL is set.
var ErrNotConfigured = errors.New("directory base url not configured")

// Team is a group of attendants.
type Team struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Forwarding is a routing rule for a conversation handed over to a team.
type Forwarding struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// RequiresAttendant reports whether the rule needs an attendant id.
func (f Forwarding) RequiresAttendant() bool {
	return strings.EqualFold(strings.TrimSpace(f.Description), SpecificAttendantDescription)
}

// Attendant is a human agent within a team.
type Attendant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TeamID string `json:"teamId"`
}

// Lookup lists directory entries.
type Lookup interface {
	ListTeams(ctx context.Context) ([]Team, error)
	ListForwardings(ctx context.Context) ([]Forwarding, error)
	ListAttendants(ctx context.Context, teamID string) ([]Attendant, error)
}

// StatusError is returned when the directory answers with a non-2xx status.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory request %s failed with status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client is the HTTP implementation of Lookup.
type Client struct {
	baseURL  string
	http     *http.Client
	maxBytes int64
}

var _ Lookup = (*Client)(nil)

// NewClient creates a directory client from cfg. The returned client is safe
// for concurrent use.
func NewClient(cfg *config.DirectoryConfig, m *metrics.Collectors) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid directory base url '%s'", cfg.BaseURL)
	}
	httpCfg := &config.HTTPConfig{TimeoutSeconds: cfg.TimeoutSeconds}
	if httpCfg.TimeoutSeconds <= 0 {
		httpCfg.TimeoutSeconds = config.DefaultDirectoryTimeoutSeconds
	}
	return NewClientWithHTTP(cfg.BaseURL, httpclient.NewClient(httpCfg, m)), nil
}

// NewClientWithHTTP creates a directory client over an existing http.Client.
func NewClientWithHTTP(baseURL string, client *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client, maxBytes: MaxResponseBytes}
}

// ListTeams returns all teams.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.get(ctx, "/teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// ListForwardings returns all forwarding rules.
func (c *Client) ListForwardings(ctx context.Context) ([]Forwarding, error) {
	var forwardings []Forwarding
	if err := c.get(ctx, "/forwardings", &forwardings); err != nil {
		return nil, err
	}
	return forwardings, nil
}

// ListAttendants returns the attendants of teamID.
func (c *Client) ListAttendants(ctx context.Context, teamID string) ([]Attendant, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, errors.New("team id is required")
	}
	var attendants []Attendant
	if err := c.get(ctx, "/teams/"+url.PathEscape(teamID)+"/attendants", &attendants); err != nil {
		return nil, err
	}
	return attendants, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create directory request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	// Read one byte past the cap to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read directory response %s: %w", path, err)
	}
	if int64(len(body)) > c.maxBytes {
		return fmt.Errorf("directory response %s exceeds %d bytes", path, c.maxBytes)
	}
	logging.Logw(logging.Debug, "Directory response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: util.Snippet(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode directory response %s: %w (body: %s)", path, err, util.Snippet(body))
	}
	return nil
}
