package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tells the sync engine how a failed request should be treated.
type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindTransport    ErrorKind = "transport"
	KindPayload      ErrorKind = "payload"
	KindUnknown      ErrorKind = "unknown"
)

// Error is returned by Client for every failed remote call.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("remote %s error %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// payloadHints are fragments of server messages that point at the request
// content rather than the network.
var payloadHints = []string{"tamanho", "size", "formato", "type"}

func isPayloadMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, h := range payloadHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// requestError wraps a failure that happened before any response arrived.
func requestError(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: err.Error(), Err: err}
}

func payloadError(format string, args ...any) *Error {
	return &Error{Kind: KindPayload, Message: fmt.Sprintf(format, args...)}
}
