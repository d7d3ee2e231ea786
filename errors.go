package nostrconnect

import "errors"

var (
	ErrInvalidRelayURL   = errors.New("invalid relay url")
	ErrInvalidConditions = errors.New("invalid delegation conditions")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidInvitation = errors.New("invalid connect invitation")
	ErrInvalidKey        = errors.New("invalid key")
)
