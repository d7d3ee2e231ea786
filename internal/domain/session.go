package domain

import (
	"fmt"
	"time"
)

// Keys of the persisted session record.
const (
	RecordPrivateKey    = "private-key-material"
	RecordRemoteSigner  = "remote-signer-public-key"
	RecordDelegation    = "delegation-credential"
	RecordConnectRelay  = "connect-relay"
	RecordPublishRelays = "publish-relays"
)

// RecordKeys lists every key a session record may hold.
var RecordKeys = []string{
	RecordPrivateKey,
	RecordRemoteSigner,
	RecordDelegation,
	RecordConnectRelay,
	RecordPublishRelays,
}

const (
	RequesterCtxKey    = "nc-requester"
	RequesterAnonymous = "anonymous"
	RequesterOperator  = "operator"
)

// Identity is the local keypair of a session.
type Identity struct {
	SecretKey string `json:"-"`
	PublicKey string `json:"pubkey"`
	Npub      string `json:"npub"`
}

type SignerState int

const (
	Unbound SignerState = iota
	AwaitingSignerKey
	Bound
)

func (s SignerState) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case AwaitingSignerKey:
		return "awaiting_signer_key"
	case Bound:
		return "bound"
	default:
		return fmt.Sprintf("SignerState(%d)", int(s))
	}
}

func (s SignerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SignerState) UnmarshalText(text []byte) error {
	for _, candidate := range []SignerState{Unbound, AwaitingSignerKey, Bound} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown signer state %q", text)
}

const (
	EventHandshakeStarted    = "handshake.started"
	EventHandshakeFailed     = "handshake.failed"
	EventSignerBound         = "signer.bound"
	EventSignerDropped       = "signer.dropped"
	EventDelegationInstalled = "delegation.installed"
	EventDelegationRejected  = "delegation.rejected"
	EventNotePublished       = "note.published"
	EventRelayAdded          = "relay.added"
	EventRelayRemoved        = "relay.removed"
	EventConnectRelayChanged = "connect_relay.changed"
	EventLogout              = "session.logout"
)

// SessionEvent is emitted on every observable session transition.
type SessionEvent struct {
	Type      string    `json:"type"`
	Epoch     uint64    `json:"epoch"`
	PublicKey string    `json:"pubkey"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

type SessionStatus struct {
	PublicKey    string            `json:"pubkey"`
	Npub         string            `json:"npub"`
	State        SignerState       `json:"state"`
	Signer       string            `json:"signer,omitempty"`
	Epoch        uint64            `json:"epoch"`
	ConnectRelay string            `json:"connectRelay"`
	Relays       []string          `json:"relays"`
	Invitation   string            `json:"invitation"`
	Delegation   *DelegationStatus `json:"delegation,omitempty"`
}

// DelegationStatus describes the trusted credential. Active is the temporal
// check at the time the status was taken.
type DelegationStatus struct {
	Delegator     string     `json:"delegator"`
	DelegatorNpub string     `json:"delegatorNpub"`
	Conditions    string     `json:"conditions"`
	NotBefore     *time.Time `json:"notBefore,omitempty"`
	NotAfter      *time.Time `json:"notAfter,omitempty"`
	Kinds         []int      `json:"kinds"`
	Active        bool       `json:"active"`
}
