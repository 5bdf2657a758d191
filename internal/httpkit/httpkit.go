// Package httpkit provides shared HTTP client construction for all
// outbound calls in Quill (embedding model, chat model, search
// provider). It enforces consistent timeouts and connection pooling so
// individual packages don't grow their own ad-hoc http.Client values.
package httpkit

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quillworks/quill-assistant/internal/buildinfo"
)

// Default timeouts and connection pool limits for the shared transport.
const (
	// DefaultDialTimeout is the maximum time to establish a TCP connection.
	DefaultDialTimeout = 10 * time.Second

	// DefaultKeepAlive is the interval between TCP keep-alive probes.
	DefaultKeepAlive = 30 * time.Second

	// DefaultTLSHandshakeTimeout is the maximum time for the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second

	// DefaultIdleConnTimeout is how long idle connections stay in the pool.
	DefaultIdleConnTimeout = 90 * time.Second

	// DefaultMaxIdleConns is the total idle connection limit across hosts.
	DefaultMaxIdleConns = 20

	// DefaultMaxIdleConnsPerHost is the per-host idle connection limit.
	DefaultMaxIdleConnsPerHost = 5
)

// ClientOption configures a Client built by NewClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout   time.Duration
	userAgent string
}

// WithTimeout sets the overall request timeout on the http.Client.
// A zero value disables the timeout (useful for long model calls).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// NewTransport creates an http.Transport with sensible defaults.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
	}
}

// NewClient creates an http.Client with the shared transport and a
// User-Agent roundtripper identifying this build.
func NewClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{
		userAgent: "quill/" + buildinfo.Version,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var rt http.RoundTripper = NewTransport()
	if cfg.userAgent != "" {
		rt = &userAgentTransport{base: rt, userAgent: cfg.userAgent}
	}

	return &http.Client{
		Timeout:   cfg.timeout,
		Transport: rt,
	}
}

// userAgentTransport injects a User-Agent header on every request that
// doesn't already set one.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// ReadErrorBody reads up to max bytes of an error response body for
// inclusion in error messages. Never fails; returns what it got.
func ReadErrorBody(r io.Reader, max int64) string {
	body, _ := io.ReadAll(io.LimitReader(r, max))
	return string(body)
}
