package domain

import (
	"errors"
	"fmt"
)

// FaultKind classifies an error by who must act on it: the caller sent
// something malformed (ClientFault) or the backend failed (StoreFault).
type FaultKind int

const (
	// ClientFault marks caller-input errors: malformed identifiers,
	// invalid selections, failed request validation. Never retried.
	ClientFault FaultKind = iota + 1
	// StoreFault marks persistence or read failures in the message store.
	StoreFault
)

// Fault is an error tagged with a FaultKind. The message is safe to show
// to the caller for ClientFault; for StoreFault only in development mode.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Fault) Unwrap() error { return f.Err }

// ClientFaultf builds a ClientFault with a formatted caller-facing message.
func ClientFaultf(format string, args ...any) error {
	return &Fault{Kind: ClientFault, Message: fmt.Sprintf(format, args...)}
}

// StoreFaultErr wraps a backend failure as a StoreFault.
func StoreFaultErr(msg string, err error) error {
	return &Fault{Kind: StoreFault, Message: msg, Err: err}
}

// IsClientFault reports whether err is (or wraps) a ClientFault.
func IsClientFault(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == ClientFault
}

// IsStoreFault reports whether err is (or wraps) a StoreFault.
func IsStoreFault(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == StoreFault
}

// FaultMessage returns the caller-facing message for err, or fallback if
// err carries no Fault.
func FaultMessage(err error, fallback string) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return fallback
}
