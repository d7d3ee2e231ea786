package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

// SignerSession is the remote signer state machine
// Unbound -> AwaitingSignerKey -> Bound. Every handshake start, drop and
// reset bumps the epoch; a response is applied only if the epoch it was
// issued under is still current.
//
// signer always mirrors the persisted binding. A re-handshake from Bound
// leaves it in place until a new key replaces it or the binding is dropped.
type SignerSession struct {
	mu     sync.Mutex
	state  domain.SignerState
	signer string
	relay  nostrconnect.RelayURL
	epoch  uint64
	cancel context.CancelFunc

	remote     RemoteSigner
	dispatcher *Dispatcher
	store      RecordStore
	timeout    time.Duration
	emit       emitFunc
}

func NewSignerSession(remote RemoteSigner, dispatcher *Dispatcher, store RecordStore, timeout time.Duration, emit emitFunc) *SignerSession {
	return &SignerSession{
		state:      domain.Unbound,
		remote:     remote,
		dispatcher: dispatcher,
		store:      store,
		timeout:    timeout,
		emit:       emit,
	}
}

// Restore binds the persisted signer key, if there is a valid one, as
// reachable on relay.
func (s *SignerSession) Restore(ctx context.Context, relay nostrconnect.RelayURL) error {
	key, err := s.store.Get(ctx, domain.RecordRemoteSigner)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !nostrconnect.ValidPublicKey(key) {
		slog.WarnContext(ctx, "ignoring malformed signer key", slog.String("module", "signer"))
		return nil
	}

	s.mu.Lock()
	s.state = domain.Bound
	s.signer = key
	s.relay = relay
	s.mu.Unlock()
	return nil
}

// BeginHandshake starts waiting for a signer to answer the invitation of id
// on relay. Any handshake still in flight is cancelled and resolves with
// domain.ErrSuperseded.
func (s *SignerSession) BeginHandshake(ctx context.Context, id domain.Identity, relay nostrconnect.RelayURL) *utils.Pending[string] {
	ctx, span := tracer.Start(ctx, "Session.Usecase.BeginHandshake")
	defer span.End()

	since := time.Now()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.epoch++
	epoch := s.epoch
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.cancel = cancel
	s.state = domain.AwaitingSignerKey
	s.mu.Unlock()

	s.emit.emit(ctx, domain.EventHandshakeStarted, relay.String())

	job := Dispatch(hctx, s.dispatcher, func(ctx context.Context, tr Transport) (string, error) {
		return s.remote.AwaitSignerKey(ctx, tr, id, relay, since)
	})

	result := utils.NewPending[string]()
	job.Then(func(key string, err error) {
		cancel()
		result.Resolve(s.complete(hctx, epoch, relay, key, err))
	})
	return result
}

func (s *SignerSession) complete(ctx context.Context, epoch uint64, relay nostrconnect.RelayURL, key string, err error) (string, error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		slog.DebugContext(
			ctx, "discarding stale handshake response",
			slog.Uint64("epoch", epoch),
			slog.String("module", "signer"),
		)
		return "", domain.ErrSuperseded
	}

	if err == nil && !nostrconnect.ValidPublicKey(key) {
		err = domain.TransportError{Op: "handshake", Err: nostrconnect.ErrInvalidKey}
	}
	if err != nil {
		s.cancel = nil
		s.mu.Unlock()

		err = classify("handshake", relay, err)
		slog.WarnContext(
			ctx, "handshake failed",
			slog.String("relay", relay.String()),
			slog.String("error", err.Error()),
			slog.String("module", "signer"),
		)
		s.emit.emit(ctx, domain.EventHandshakeFailed, err.Error())
		return "", err
	}

	s.state = domain.Bound
	s.signer = key
	s.relay = relay
	s.cancel = nil
	perr := s.store.Set(ctx, domain.RecordRemoteSigner, key)
	s.mu.Unlock()

	if perr != nil {
		slog.ErrorContext(
			ctx, "failed to persist signer binding",
			slog.String("error", perr.Error()),
			slog.String("module", "signer"),
		)
	}

	slog.InfoContext(
		ctx, "remote signer bound",
		slog.String("signer", key),
		slog.String("module", "signer"),
	)
	s.emit.emit(ctx, domain.EventSignerBound, key)
	return key, nil
}

// Drop forgets the live signer binding.
func (s *SignerSession) Drop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
	s.state = domain.Unbound
	s.signer = ""
	s.relay = ""
	err := s.store.Delete(ctx, domain.RecordRemoteSigner)
	s.mu.Unlock()

	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.emit.emit(ctx, domain.EventSignerDropped, "")
	return nil
}

// Reset invalidates everything in flight and returns to Unbound without
// touching the store.
func (s *SignerSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
	s.state = domain.Unbound
	s.signer = ""
	s.relay = ""
}

func (s *SignerSession) Snapshot() (domain.SignerState, string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.signer, s.epoch
}

func (s *SignerSession) State() domain.SignerState {
	state, _, _ := s.Snapshot()
	return state
}

func (s *SignerSession) Epoch() uint64 {
	_, _, epoch := s.Snapshot()
	return epoch
}

// Binding returns the persisted signer and the relay it answers on.
func (s *SignerSession) Binding() (string, nostrconnect.RelayURL, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signer, s.relay, s.signer != ""
}

// Signer returns the persisted signer binding, if any. It stays set while a
// re-handshake is awaiting a new key.
func (s *SignerSession) Signer() (string, bool) {
	_, signer, _ := s.Snapshot()
	return signer, signer != ""
}

// Current reports whether epoch is still the current one.
func (s *SignerSession) Current(epoch uint64) bool {
	return s.Epoch() == epoch
}

func classify(op string, relay nostrconnect.RelayURL, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.HandshakeTimeoutError{Relay: relay.String()}
	case errors.Is(err, domain.ErrTransportFailure),
		errors.Is(err, domain.ErrUntrustedDelegation),
		errors.Is(err, domain.ErrSigningFailure):
		return err
	default:
		return domain.TransportError{Op: op, Err: err}
	}
}
