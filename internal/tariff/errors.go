package tariff

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the service answered outside the 2xx range.
type StatusError struct {
	Code     int
	Endpoint string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tariff: %s returned %d %s", e.Endpoint, e.Code, http.StatusText(e.Code))
}

// NetworkError is returned when the request never produced a response.
type NetworkError struct {
	// Kind is one of timeout, dns, dial, tls, canceled or other.
	Kind     string
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("tariff: %s %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
