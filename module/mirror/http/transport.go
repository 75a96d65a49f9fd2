package http

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type transportOptions struct {
	insecure bool
	retryMax int
	timeout  time.Duration
}

// TransportOption configures the transport built by NewHTTPClient
type TransportOption func(*transportOptions)

func WithInsecure(insecure bool) TransportOption {
	return func(o *transportOptions) {
		o.insecure = insecure
	}
}

func WithRetryMax(retryMax int) TransportOption {
	return func(o *transportOptions) {
		o.retryMax = retryMax
	}
}

func WithTimeout(timeout time.Duration) TransportOption {
	return func(o *transportOptions) {
		o.timeout = timeout
	}
}

func buildOptions(opts []TransportOption) transportOptions {
	o := transportOptions{
		retryMax: 3,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetHTTPTransport returns a pooled transport honouring the insecure option.
func GetHTTPTransport(opts ...TransportOption) *http.Transport {
	o := buildOptions(opts)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	if o.timeout > 0 {
		transport.ResponseHeaderTimeout = o.timeout
	}
	return transport
}

// NewHTTPClient returns a net/http client whose GET and HEAD requests are
// retried with backoff by go-retryablehttp. Other methods are sent once:
// retrying a create or a commit could duplicate state on the backend.
// Compressed responses are decoded by gzhttp.
func NewHTTPClient(opts ...TransportOption) *http.Client {
	o := buildOptions(opts)
	plain := gzhttp.Transport(GetHTTPTransport(opts...))

	rc := retryablehttp.NewClient()
	rc.RetryMax = o.retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Transport = plain
	rc.HTTPClient.Timeout = o.timeout
	rc.Logger = leveledLogger{logger: log.Logger}
	// hand the final response back instead of a "giving up" error so callers
	// can inspect status codes.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &http.Client{
		Transport: &idempotentTransport{
			retrying: &retryablehttp.RoundTripper{Client: rc},
			plain:    plain,
		},
		Timeout: o.timeout * time.Duration(o.retryMax+2),
	}
}

type idempotentTransport struct {
	retrying http.RoundTripper
	plain    http.RoundTripper
}

func (t *idempotentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return t.retrying.RoundTrip(req)
	default:
		return t.plain.RoundTrip(req)
	}
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Trace().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
