package usecase

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
)

// RecordStore is the durable per-session key-value record. Get returns
// domain.ErrNotFound for a missing key.
type RecordStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Transport is the relay connection. Only the Dispatcher goroutine calls it.
type Transport interface {
	Connect(ctx context.Context, relay nostrconnect.RelayURL) error
	Disconnect(ctx context.Context, relay nostrconnect.RelayURL) error
	// Publish succeeds if at least one relay accepted the event.
	Publish(ctx context.Context, relays []nostrconnect.RelayURL, ev nostr.Event) error
	// Subscribe streams matching events until ctx is done.
	Subscribe(ctx context.Context, relay nostrconnect.RelayURL, filter nostr.Filter) (<-chan nostr.Event, error)
}

// RemoteSigner speaks the remote signing protocol over a Transport.
type RemoteSigner interface {
	// AwaitSignerKey waits on relay for a signer to accept the invitation of
	// id and returns the signer's public key. Messages older than since are
	// not considered.
	AwaitSignerKey(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, since time.Time) (string, error)
	// RequestDelegation asks signer for a credential delegating to id. The
	// returned credential verifies for id.
	RequestDelegation(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, cond nostrconnect.Conditions) (nostrconnect.DelegationCredential, error)
	// SignEvent has signer sign ev, which must carry the signer's pubkey.
	SignEvent(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, ev nostr.Event) (nostr.Event, error)
}

// Notifier receives session events.
type Notifier interface {
	Notify(ctx context.Context, event domain.SessionEvent) error
}
