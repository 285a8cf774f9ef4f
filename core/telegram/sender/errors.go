package sender

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/etf-team/tariffbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// classifyError names the failure for logs: the transport kind when netutil
// recognises one, otherwise the HTTP status class.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if kind := netutil.Classify(err); kind != "" && kind != "other" {
		return kind
	}
	switch status := statusOf(err); {
	case status == http.StatusForbidden:
		return "blocked"
	case status == http.StatusTooManyRequests:
		return "flood"
	case status >= http.StatusInternalServerError:
		return "http_5xx"
	case status >= http.StatusBadRequest:
		return "http_4xx"
	default:
		return "unknown"
	}
}

// sanitizeErrorMessage masks bot tokens that leak through request URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// statusOf extracts an HTTP-like status from telebot errors, falling back
// to a trailing "(NNN)" in the message.
func statusOf(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *tele.Error
	var flood tele.FloodError
	var group tele.GroupError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &flood):
		return http.StatusTooManyRequests
	case errors.As(err, &group):
		return http.StatusBadRequest
	}
	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}
