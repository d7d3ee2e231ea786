package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing record.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing records.
var ErrNotFound = NotFoundError{}

// InvalidRelayURIError rejects malformed relay input. State is unchanged.
type InvalidRelayURIError struct {
	URI string
	Err error
}

func (e InvalidRelayURIError) Error() string {
	return fmt.Sprintf("invalid relay uri %q: %v", e.URI, e.Err)
}

func (e InvalidRelayURIError) Unwrap() error { return e.Err }

func (e InvalidRelayURIError) Is(target error) bool {
	_, ok := target.(InvalidRelayURIError)
	return ok
}

var ErrInvalidRelayURI = InvalidRelayURIError{}

// HandshakeTimeoutError means the remote signer did not answer in time.
type HandshakeTimeoutError struct {
	Relay string
}

func (e HandshakeTimeoutError) Error() string {
	if e.Relay == "" {
		return "handshake timed out"
	}
	return fmt.Sprintf("handshake timed out on %s", e.Relay)
}

func (e HandshakeTimeoutError) Is(target error) bool {
	_, ok := target.(HandshakeTimeoutError)
	return ok
}

var ErrHandshakeTimeout = HandshakeTimeoutError{}

// TransportError wraps a relay level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport failure: %s", e.Op)
	}
	return fmt.Sprintf("transport failure: %s: %v", e.Op, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

func (e TransportError) Is(target error) bool {
	_, ok := target.(TransportError)
	return ok
}

var ErrTransportFailure = TransportError{}

// UntrustedDelegationError rejects a credential that does not verify.
type UntrustedDelegationError struct {
	Delegator string
	Err       error
}

func (e UntrustedDelegationError) Error() string {
	return fmt.Sprintf("untrusted delegation from %q: %v", e.Delegator, e.Err)
}

func (e UntrustedDelegationError) Unwrap() error { return e.Err }

func (e UntrustedDelegationError) Is(target error) bool {
	_, ok := target.(UntrustedDelegationError)
	return ok
}

var ErrUntrustedDelegation = UntrustedDelegationError{}

// SigningError means an event could not be signed.
type SigningError struct {
	Err error
}

func (e SigningError) Error() string {
	return fmt.Sprintf("signing failure: %v", e.Err)
}

func (e SigningError) Unwrap() error { return e.Err }

func (e SigningError) Is(target error) bool {
	_, ok := target.(SigningError)
	return ok
}

var ErrSigningFailure = SigningError{}

var (
	ErrNotBound         = errors.New("no remote signer bound")
	ErrSuperseded       = errors.New("request superseded")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrRemoteSigner     = errors.New("remote signer error")
	ErrUnauthorized     = errors.New("unauthorized")
)
