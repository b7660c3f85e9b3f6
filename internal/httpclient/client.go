package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"flowhook/internal/config"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// NewClient creates the *http.Client used for integration requests. It
// applies the TLS and HTTP/1.1 settings from cfg and, when m is non-nil,
// instruments the transport. Redirects are followed by the standard policy.
func NewClient(cfg *config.HTTPConfig, m *metrics.Collectors) *http.Client {
	if cfg == nil {
		cfg = &config.HTTPConfig{}
	}

	baseTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TlsSkipVerify,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.ForceHTTP1 {
		logging.Logf(logging.Info, "Forcing HTTP/1.1 for integration requests")
		baseTransport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		baseTransport.ForceAttemptHTTP2 = false
	}
	if cfg.TlsSkipVerify {
		logging.Logf(logging.Info, "TLS certificate verification is DISABLED for integration requests")
	}

	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &instrumentedTransport{base: baseTransport, next: m.InstrumentRoundTripper(baseTransport)},
	}
}

// instrumentedTransport keeps the tuned transport reachable under the
// metrics wrappers.
type instrumentedTransport struct {
	base *http.Transport
	next http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the base transport.
func (t *instrumentedTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

// baseTransport returns the *http.Transport built by NewClient, or nil for
// clients built elsewhere.
func baseTransport(client *http.Client) *http.Transport {
	if client == nil {
		return nil
	}
	switch t := client.Transport.(type) {
	case *instrumentedTransport:
		return t.base
	case *http.Transport:
		return t
	}
	return nil
}
