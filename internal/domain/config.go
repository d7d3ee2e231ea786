package domain

import "time"

type SessionConfig struct {
	Name             string
	ConnectRelay     string
	Relays           []string
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	QueueDepth       int

	DelegationKinds        []int
	DelegationValidFor     time.Duration
	DropSignerOnDelegation bool
}
