package syncer

import (
	"errors"
	"fmt"
)

// Kind classifies a failed sync run
type Kind string

const (
	TransportError           Kind = "transport"
	ParseError               Kind = "parse"
	InvalidAdminConfigError  Kind = "invalid_admin_config"
	HardwareFingerprintError Kind = "hardware_fingerprint"
	ConfigError              Kind = "config"
	StorageError             Kind = "storage"
)

// ErrInFlight is returned by RunOnce when another run has not finished yet
var ErrInFlight = errors.New("sync already in progress")

// Error is the single error type surfaced by a sync run
type Error struct {
	Kind    Kind
	Status  int // HTTP status for TransportError, 0 otherwise
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a sync Error of kind
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
