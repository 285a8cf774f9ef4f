package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
)

// ShouldRetry reports whether err is a transient transport failure: a
// timeout anywhere in the chain or a failed dial.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Classify maps a transport error onto a short kind used in logs and metrics:
// timeout, dns, dial, tls, canceled or other.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var (
		dnsErr  *net.DNSError
		netErr  net.Error
		opErr   *net.OpError
		alert   tls.AlertError
		certErr *tls.CertificateVerificationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alert), errors.As(err, &certErr):
		return "tls"
	}
	return "other"
}
