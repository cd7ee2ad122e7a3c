package signhere

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures that do not come from a collaborator
type Kind int

const (
	// KindConfiguration means the options are invalid; nothing was executed
	KindConfiguration Kind = iota + 1
	// KindFileSystem covers reading keys and writing artifacts
	KindFileSystem
	// KindIdentity means the exported PKCS#12 identity failed verification
	KindIdentity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindFileSystem:
		return "file system"
	case KindIdentity:
		return "identity"
	}
	return "unknown"
}

// ErrProfileNameMissing is returned when auto regeneration is requested
// without naming the profile to regenerate.
var ErrProfileNameMissing = errors.New("auto regeneration requires a profile name")

var errKeychainNameMissing = errors.New("keychain name is required")

// Error is a workflow failure. Collaborator errors (token, appstore, openssl,
// keychain) are returned as they are.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
