// Package netutil holds the HTTP plumbing shared by the Telegram client
// and the tariff API client.
package netutil

import (
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes NewClient.
type ClientOptions struct {
	// Timeout bounds the whole request including reading the body; 0 means 30s.
	Timeout time.Duration
	// ResponseHeaderTimeout bounds waiting for response headers; 0 means no limit.
	ResponseHeaderTimeout time.Duration
	// Retries is the number of extra attempts on transient network errors.
	Retries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = dialer.DialContext
	t.MaxIdleConnsPerHost = 10
	t.IdleConnTimeout = 30 * time.Second
	t.TLSHandshakeTimeout = 5 * time.Second
	t.ResponseHeaderTimeout = headerTimeout
	return t
}

// NewClient builds an HTTP client that retries transient dial and timeout
// failures when opts.Retries is positive.
func NewClient(opts ClientOptions) *http.Client {
	c := &http.Client{Timeout: opts.Timeout, Transport: newTransport(opts.ResponseHeaderTimeout)}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if opts.Retries > 0 {
		c.Transport = &retryTransport{base: c.Transport, maxRetries: opts.Retries, backoff: opts.Backoff}
	}
	return c
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

// rewind returns a copy of req with a fresh body, or false when the body
// cannot be replayed.
func rewind(req *http.Request) (*http.Request, bool, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req.Clone(req.Context()), true, nil
	}
	if req.GetBody == nil {
		return nil, false, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false, err
	}
	next := req.Clone(req.Context())
	next.Body = body
	return next, true, nil
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && ShouldRetry(err); attempt++ {
		next, ok, rewindErr := rewind(req)
		if rewindErr != nil {
			return nil, rewindErr
		}
		if !ok {
			return nil, err
		}
		if delay := t.backoff * time.Duration(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}
