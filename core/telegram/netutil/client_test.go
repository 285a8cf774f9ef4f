package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "dial", err: &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, want: "dial"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "x"}, want: "dns"},
		{name: "net timeout", err: &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, want: "timeout"},
		{name: "plain", err: errors.New("boom"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}))
}

type flakyTransport struct {
	calls atomic.Int32
	fails int32
	next  http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
	}
	return f.next.RoundTrip(req)
}

func TestRetryTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	flaky := &flakyTransport{fails: 2, next: http.DefaultTransport}
	client := &http.Client{Transport: &retryTransport{base: flaky, maxRetries: 2, backoff: time.Millisecond}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestNewClient_NoRetriesByDefault(t *testing.T) {
	c := NewClient(ClientOptions{Timeout: time.Second})
	_, isRetry := c.Transport.(*retryTransport)
	assert.False(t, isRetry)
	assert.Equal(t, time.Second, c.Timeout)

	c = NewClient(ClientOptions{Retries: 3})
	_, isRetry = c.Transport.(*retryTransport)
	assert.True(t, isRetry)
	assert.Equal(t, 30*time.Second, c.Timeout)
}
