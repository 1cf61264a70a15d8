// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pdiddy/litbrief/pkg/types"
)

// Kind classifies a failure.
type Kind string

const (
	// KindConfig is a missing or invalid credential or model selection.
	KindConfig Kind = "config"
	// KindAuth is a key the vendor rejected.
	KindAuth Kind = "auth"
	// KindRequest is any other vendor or transport failure.
	KindRequest Kind = "request"
	// KindParse is model output that did not match the expected shape.
	KindParse Kind = "parse"
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Provider   types.ProviderName
	Op         string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s", e.Provider)
		if e.Op != "" {
			fmt.Fprintf(&b, " %s", e.Op)
		}
		b.WriteString("]")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable is true only for request errors.
func (e *Error) IsRetryable() bool { return e.Kind == KindRequest }

// ConfigError reports a missing or invalid local setting.
func ConfigError(provider types.ProviderName, msg string) *Error {
	return &Error{Kind: KindConfig, Provider: provider, Message: msg}
}

// AuthError reports a rejected credential.
func AuthError(provider types.ProviderName, op string, status int, cause error) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Op: op, Message: "authentication failed", StatusCode: status, Cause: cause}
}

// RequestError reports a vendor-side failure.
func RequestError(provider types.ProviderName, op string, status int, cause error) *Error {
	return &Error{Kind: KindRequest, Provider: provider, Op: op, StatusCode: status, Cause: cause}
}

// ParseError reports unusable model output.
func ParseError(msg string, cause error) *Error {
	return &Error{Kind: KindParse, Message: msg, Cause: cause}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// Classify wraps err in the taxonomy using the HTTP status when known and
// the message text otherwise. Already-classified errors pass through.
func Classify(provider types.ProviderName, op string, status int, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return AuthError(provider, op, status, err)
	}
	if status == 0 {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
			strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key") ||
			strings.Contains(lower, "authentication_error") || strings.Contains(lower, "api key not valid") {
			return AuthError(provider, op, http.StatusUnauthorized, err)
		}
	}
	return RequestError(provider, op, status, err)
}

// IsTransportError reports whether err came from the network layer before a
// response was received: DNS failure, refused or reset connections, timeouts.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "no such host", "network is unreachable", "i/o timeout", "eof"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
