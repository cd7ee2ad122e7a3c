package appstore

import (
	"fmt"
	"net/http"
)

// Kind classifies portal failures
type Kind int

const (
	// KindTransport covers connection failures and unexpected status codes
	KindTransport Kind = iota + 1
	// KindDecode means the response body did not match the expected schema
	KindDecode
	// KindNotFound means a lookup matched zero or several resources
	KindNotFound
	// KindRejected means the portal refused a mutation
	KindRejected
	// KindInvalidContent means an embedded base64 payload could not be decoded
	KindInvalidContent
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindNotFound:
		return "not found"
	case KindRejected:
		return "rejected"
	case KindInvalidContent:
		return "invalid content"
	}
	return "unknown"
}

// Error is returned by every Client operation
type Error struct {
	Kind Kind
	// Op describes the failed operation, e.g. "fetch devices"
	Op string
	// StatusCode is the HTTP status, 0 when no response was received
	StatusCode int
	// Body is the raw response body, if any
	Body []byte
	// Resource names the object involved (bundle identifier, display name, profile id)
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := "failed to " + e.Op
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	msg += " (" + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
