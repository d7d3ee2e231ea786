package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

var tracer = otel.Tracer("session")

// Session ties the identity, relays, remote signer, delegation and authoring
// of one user together. All network work goes through one Dispatcher.
type Session struct {
	mu   sync.RWMutex
	keys *KeyHolder

	config     domain.SessionConfig
	store      RecordStore
	notifier   Notifier
	dispatcher *Dispatcher

	defaultConnect nostrconnect.RelayURL
	defaultRelays  []nostrconnect.RelayURL

	relays     *RelaySet
	signer     *SignerSession
	delegation *DelegationManager
	author     *Author
}

// NewSession restores the session from store, or starts a fresh one. The
// session takes ownership of transport.
func NewSession(
	ctx context.Context,
	config domain.SessionConfig,
	store RecordStore,
	transport Transport,
	remote RemoteSigner,
	notifier Notifier,
) (*Session, error) {
	connect, err := nostrconnect.ParseRelayURL(config.ConnectRelay)
	if err != nil {
		return nil, domain.InvalidRelayURIError{URI: config.ConnectRelay, Err: err}
	}
	relays := make([]nostrconnect.RelayURL, 0, len(config.Relays))
	for _, raw := range config.Relays {
		r, err := nostrconnect.ParseRelayURL(raw)
		if err != nil {
			return nil, domain.InvalidRelayURIError{URI: raw, Err: err}
		}
		relays = append(relays, r)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 2 * time.Minute
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.DelegationValidFor <= 0 {
		config.DelegationValidFor = 2 * time.Hour
	}
	if len(config.DelegationKinds) == 0 {
		config.DelegationKinds = []int{nostr.KindTextNote, 77}
	}

	keys, err := CreateOrRestore(ctx, store)
	if err != nil {
		return nil, err
	}

	s := &Session{
		keys:           keys,
		config:         config,
		store:          store,
		notifier:       notifier,
		dispatcher:     NewDispatcher(transport, config.QueueDepth),
		defaultConnect: connect,
		defaultRelays:  relays,
	}

	s.relays = NewRelaySet(s.dispatcher, store, s.emit, connect, relays)
	s.signer = NewSignerSession(remote, s.dispatcher, store, config.HandshakeTimeout, s.emit)
	s.delegation = NewDelegationManager(store, s.signer, remote, s.dispatcher, s.Identity, config.RequestTimeout, s.emit)
	s.author = NewAuthor(s.keyHolder, s.signer, s.delegation, s.relays, remote, s.dispatcher, config.RequestTimeout, s.emit)

	if err := s.relays.Restore(ctx); err != nil {
		s.dispatcher.Close()
		return nil, errors.Wrap(err, "restore relays")
	}
	if err := s.signer.Restore(ctx, s.relays.ConnectRelay()); err != nil {
		s.dispatcher.Close()
		return nil, errors.Wrap(err, "restore signer")
	}

	return s, nil
}

func (s *Session) emit(ctx context.Context, typ, detail string) {
	if s.notifier == nil {
		return
	}
	event := domain.SessionEvent{
		Type:      typ,
		Epoch:     s.signer.Epoch(),
		PublicKey: s.Identity().PublicKey,
		Detail:    detail,
		Time:      time.Now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.WarnContext(
			ctx, "failed to deliver session event",
			slog.String("type", typ),
			slog.String("error", err.Error()),
			slog.String("module", "session"),
		)
	}
}

func (s *Session) keyHolder() *KeyHolder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

func (s *Session) Identity() domain.Identity {
	return s.keyHolder().Identity()
}

// Invitation is the connect string for the current identity and connect
// relay.
func (s *Session) Invitation() nostrconnect.Invitation {
	return nostrconnect.Invitation{
		PublicKey: s.Identity().PublicKey,
		Relay:     s.relays.ConnectRelay(),
		Name:      s.config.Name,
	}
}

func (s *Session) ConnectRelays(ctx context.Context) *utils.Pending[struct{}] {
	return s.relays.ConnectAll(ctx)
}

func (s *Session) AddRelay(ctx context.Context, uri string) (*utils.Pending[struct{}], error) {
	return s.relays.AddRelay(ctx, uri)
}

func (s *Session) RemoveRelay(ctx context.Context, uri string) *utils.Pending[struct{}] {
	return s.relays.RemoveRelay(ctx, uri)
}

func (s *Session) SetConnectRelay(ctx context.Context, uri string) (nostrconnect.RelayURL, error) {
	return s.relays.SetConnectRelay(ctx, uri)
}

func (s *Session) Relays() []nostrconnect.RelayURL {
	return s.relays.Relays()
}

func (s *Session) ConnectRelay() nostrconnect.RelayURL {
	return s.relays.ConnectRelay()
}

func (s *Session) State() domain.SignerState {
	return s.signer.State()
}

func (s *Session) Signer() (string, bool) {
	return s.signer.Signer()
}

func (s *Session) BeginHandshake(ctx context.Context) *utils.Pending[string] {
	return s.signer.BeginHandshake(ctx, s.Identity(), s.relays.ConnectRelay())
}

// Rebind moves the handshake channel to uri. Without a trusted delegation a
// new handshake starts there; with one, the remote signer is not needed and
// the result resolves at once with the current binding.
func (s *Session) Rebind(ctx context.Context, uri string) (*utils.Pending[string], error) {
	if _, err := s.relays.SetConnectRelay(ctx, uri); err != nil {
		return nil, err
	}

	cred, err := s.delegation.ActiveCredential(ctx)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		signer, _ := s.signer.Signer()
		slog.InfoContext(
			ctx, "delegation active, skipping handshake",
			slog.String("delegator", cred.Delegator),
			slog.String("module", "session"),
		)
		return utils.Resolved(signer, nil), nil
	}

	return s.BeginHandshake(ctx), nil
}

func (s *Session) RequestDelegation(ctx context.Context, notBefore *time.Time, notAfter time.Time, kinds []int) *utils.Pending[nostrconnect.DelegationCredential] {
	return s.delegation.RequestDelegation(ctx, notBefore, notAfter, kinds)
}

func (s *Session) VerifyAndInstall(ctx context.Context, candidate nostrconnect.DelegationCredential) error {
	return s.delegation.VerifyAndInstall(ctx, candidate)
}

func (s *Session) ActiveCredential(ctx context.Context) (*nostrconnect.DelegationCredential, error) {
	return s.delegation.ActiveCredential(ctx)
}

func (s *Session) DelegationTag(ctx context.Context) (*nostrconnect.DelegationTag, error) {
	return s.delegation.DelegationTag(ctx)
}

// Delegate requests a credential valid from now for validFor, verifies and
// installs it. Zero values fall back to the configured defaults.
func (s *Session) Delegate(ctx context.Context, validFor time.Duration, kinds []int) *utils.Pending[nostrconnect.DelegationCredential] {
	if validFor <= 0 {
		validFor = s.config.DelegationValidFor
	}
	if len(kinds) == 0 {
		kinds = s.config.DelegationKinds
	}

	request := s.delegation.RequestDelegation(ctx, nil, time.Now().Add(validFor), kinds)

	bg := context.WithoutCancel(ctx)
	result := utils.NewPending[nostrconnect.DelegationCredential]()
	request.Then(func(cred nostrconnect.DelegationCredential, err error) {
		if err != nil {
			result.Resolve(cred, err)
			return
		}
		if err := s.delegation.VerifyAndInstall(bg, cred); err != nil {
			result.Resolve(nostrconnect.DelegationCredential{}, err)
			return
		}
		if s.config.DropSignerOnDelegation {
			if _, err := s.DropRemoteSigner(bg).Wait(bg); err != nil {
				slog.WarnContext(
					bg, "failed to drop remote signer",
					slog.String("error", err.Error()),
					slog.String("module", "session"),
				)
			}
		}
		result.Resolve(cred, nil)
	})
	return result
}

func (s *Session) PublishNote(ctx context.Context, content string) *utils.Pending[string] {
	return s.author.PublishNote(ctx, content)
}

// DropRemoteSigner clears the live signer binding. It runs on the dispatcher
// so every publish queued before it still sees the old binding.
func (s *Session) DropRemoteSigner(ctx context.Context) *utils.Pending[struct{}] {
	return Dispatch(context.WithoutCancel(ctx), s.dispatcher, func(ctx context.Context, _ Transport) (struct{}, error) {
		return struct{}{}, s.signer.Drop(ctx)
	})
}

// Unbind logs out: the record is cleared, every in-flight response becomes
// stale and a fresh identity replaces the old one.
func (s *Session) Unbind(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Session.Usecase.Unbind")
	defer span.End()

	s.mu.Lock()
	s.signer.Reset()

	if err := s.store.Clear(ctx); err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		return errors.Wrap(err, "clear session record")
	}

	keys, err := CreateOrRestore(ctx, s.store)
	if err != nil {
		s.mu.Unlock()
		span.RecordError(err)
		return err
	}
	s.keys = keys
	s.mu.Unlock()

	s.relays.Reset(ctx, s.defaultConnect, s.defaultRelays)

	s.emit(ctx, domain.EventLogout, keys.PublicKey())
	return nil
}

func (s *Session) Status(ctx context.Context) (domain.SessionStatus, error) {
	id := s.Identity()
	state, signer, epoch := s.signer.Snapshot()

	relays := s.relays.Relays()
	list := make([]string, len(relays))
	for i, r := range relays {
		list[i] = r.String()
	}

	status := domain.SessionStatus{
		PublicKey:    id.PublicKey,
		Npub:         id.Npub,
		State:        state,
		Signer:       signer,
		Epoch:        epoch,
		ConnectRelay: s.relays.ConnectRelay().String(),
		Relays:       list,
		Invitation:   s.Invitation().String(),
	}

	cred, err := s.delegation.ActiveCredential(ctx)
	if err != nil {
		return status, err
	}
	if cred != nil {
		status.Delegation = describeDelegation(*cred, time.Now())
	}
	return status, nil
}

func describeDelegation(cred nostrconnect.DelegationCredential, now time.Time) *domain.DelegationStatus {
	npub, _ := nostrconnect.EncodeNpub(cred.Delegator)
	ds := &domain.DelegationStatus{
		Delegator:     cred.Delegator,
		DelegatorNpub: npub,
		Conditions:    cred.Conditions.String(),
		Kinds:         cred.Conditions.Kinds(),
		Active:        cred.Conditions.ValidAt(now),
	}
	if t, ok := cred.Conditions.NotBefore(); ok {
		ds.NotBefore = &t
	}
	if t, ok := cred.Conditions.NotAfter(); ok {
		ds.NotAfter = &t
	}
	return ds
}

// Close stops the dispatcher. Pending operations fail with
// domain.ErrDispatcherClosed.
func (s *Session) Close() {
	s.dispatcher.Close()
}
