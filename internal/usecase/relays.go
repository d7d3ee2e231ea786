package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

type emitFunc func(ctx context.Context, typ, detail string)

func (f emitFunc) emit(ctx context.Context, typ, detail string) {
	if f != nil {
		f(ctx, typ, detail)
	}
}

const relayOpTimeout = 15 * time.Second

// RelaySet tracks the publish relays and the connect relay. Its state is
// updated synchronously; the transport follows asynchronously.
type RelaySet struct {
	mu      sync.RWMutex
	relays  map[nostrconnect.RelayURL]struct{}
	connect nostrconnect.RelayURL

	dispatcher *Dispatcher
	store      RecordStore
	emit       emitFunc
}

func NewRelaySet(dispatcher *Dispatcher, store RecordStore, emit emitFunc, connect nostrconnect.RelayURL, relays []nostrconnect.RelayURL) *RelaySet {
	set := make(map[nostrconnect.RelayURL]struct{}, len(relays))
	for _, r := range relays {
		set[r] = struct{}{}
	}
	return &RelaySet{
		relays:     set,
		connect:    connect,
		dispatcher: dispatcher,
		store:      store,
		emit:       emit,
	}
}

// Restore replaces the defaults with the persisted relay configuration, if
// any. Unparsable stored entries are skipped.
func (s *RelaySet) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, domain.RecordConnectRelay)
	switch {
	case err == nil:
		if r, err := nostrconnect.ParseRelayURL(raw); err == nil {
			s.connect = r
		}
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	raw, err = s.store.Get(ctx, domain.RecordPublishRelays)
	switch {
	case err == nil:
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			slog.WarnContext(ctx, "ignoring malformed relay list", slog.String("module", "relays"))
			return nil
		}
		s.relays = make(map[nostrconnect.RelayURL]struct{}, len(list))
		for _, item := range list {
			if r, err := nostrconnect.ParseRelayURL(item); err == nil {
				s.relays[r] = struct{}{}
			}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return nil
}

// ConnectAll asks the transport to connect every publish relay.
func (s *RelaySet) ConnectAll(ctx context.Context) *utils.Pending[struct{}] {
	relays := s.Relays()
	return Dispatch(detach(ctx, relayOpTimeout*time.Duration(len(relays)+1)), s.dispatcher, func(ctx context.Context, tr Transport) (struct{}, error) {
		var errs []error
		for _, r := range relays {
			if err := tr.Connect(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return struct{}{}, domain.TransportError{Op: "connect", Err: errors.Join(errs...)}
		}
		return struct{}{}, nil
	})
}

// AddRelay inserts uri and connects to it in the background. The returned
// pending reports the connect outcome; adding a member again is a no-op.
func (s *RelaySet) AddRelay(ctx context.Context, uri string) (*utils.Pending[struct{}], error) {
	relay, err := nostrconnect.ParseRelayURL(uri)
	if err != nil {
		return nil, domain.InvalidRelayURIError{URI: uri, Err: err}
	}

	s.mu.Lock()
	if _, ok := s.relays[relay]; ok {
		s.mu.Unlock()
		return utils.Resolved(struct{}{}, nil), nil
	}
	s.relays[relay] = struct{}{}
	s.persistRelaysLocked(ctx)
	s.mu.Unlock()

	s.emit.emit(ctx, domain.EventRelayAdded, relay.String())

	return Dispatch(detach(ctx, relayOpTimeout), s.dispatcher, func(ctx context.Context, tr Transport) (struct{}, error) {
		if err := tr.Connect(ctx, relay); err != nil {
			slog.WarnContext(
				ctx, "relay connect failed",
				slog.String("relay", relay.String()),
				slog.String("error", err.Error()),
				slog.String("module", "relays"),
			)
			return struct{}{}, domain.TransportError{Op: "connect " + relay.String(), Err: err}
		}
		return struct{}{}, nil
	}), nil
}

// RemoveRelay drops uri and disconnects in the background. Removing a relay
// that is not a member, or cannot be parsed, does nothing.
func (s *RelaySet) RemoveRelay(ctx context.Context, uri string) *utils.Pending[struct{}] {
	relay, err := nostrconnect.ParseRelayURL(uri)
	if err != nil {
		return utils.Resolved(struct{}{}, nil)
	}

	s.mu.Lock()
	if _, ok := s.relays[relay]; !ok {
		s.mu.Unlock()
		return utils.Resolved(struct{}{}, nil)
	}
	delete(s.relays, relay)
	s.persistRelaysLocked(ctx)
	connect := s.connect
	s.mu.Unlock()

	s.emit.emit(ctx, domain.EventRelayRemoved, relay.String())

	if relay == connect {
		// still needed for the handshake channel
		return utils.Resolved(struct{}{}, nil)
	}

	return Dispatch(detach(ctx, relayOpTimeout), s.dispatcher, func(ctx context.Context, tr Transport) (struct{}, error) {
		if err := tr.Disconnect(ctx, relay); err != nil {
			return struct{}{}, domain.TransportError{Op: "disconnect " + relay.String(), Err: err}
		}
		return struct{}{}, nil
	})
}

// SetConnectRelay replaces the connect relay. Set membership is untouched.
func (s *RelaySet) SetConnectRelay(ctx context.Context, uri string) (nostrconnect.RelayURL, error) {
	relay, err := nostrconnect.ParseRelayURL(uri)
	if err != nil {
		return "", domain.InvalidRelayURIError{URI: uri, Err: err}
	}

	s.mu.Lock()
	changed := s.connect != relay
	s.connect = relay
	if changed {
		if err := s.store.Set(ctx, domain.RecordConnectRelay, relay.String()); err != nil {
			slog.WarnContext(
				ctx, "failed to persist connect relay",
				slog.String("error", err.Error()),
				slog.String("module", "relays"),
			)
		}
	}
	s.mu.Unlock()

	if changed {
		s.emit.emit(ctx, domain.EventConnectRelayChanged, relay.String())
	}
	return relay, nil
}

// Reset returns to the given configuration without persisting it, and brings
// the transport in line with the new set.
func (s *RelaySet) Reset(ctx context.Context, connect nostrconnect.RelayURL, relays []nostrconnect.RelayURL) *utils.Pending[struct{}] {
	next := make(map[nostrconnect.RelayURL]struct{}, len(relays))
	for _, r := range relays {
		next[r] = struct{}{}
	}

	s.mu.Lock()
	var dropped, added []nostrconnect.RelayURL
	for r := range s.relays {
		if _, ok := next[r]; !ok && r != connect {
			dropped = append(dropped, r)
		}
	}
	for r := range next {
		if _, ok := s.relays[r]; !ok {
			added = append(added, r)
		}
	}
	s.relays = next
	s.connect = connect
	s.mu.Unlock()

	return Dispatch(detach(ctx, relayOpTimeout*time.Duration(len(dropped)+len(added)+1)), s.dispatcher, func(ctx context.Context, tr Transport) (struct{}, error) {
		var errs []error
		for _, r := range dropped {
			if err := tr.Disconnect(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
		for _, r := range added {
			if err := tr.Connect(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return struct{}{}, domain.TransportError{Op: "reset", Err: errors.Join(errs...)}
		}
		return struct{}{}, nil
	})
}

func (s *RelaySet) persistRelaysLocked(ctx context.Context) {
	list := make([]string, 0, len(s.relays))
	for r := range s.relays {
		list = append(list, r.String())
	}
	sort.Strings(list)

	raw, _ := json.Marshal(list)
	if err := s.store.Set(ctx, domain.RecordPublishRelays, string(raw)); err != nil {
		slog.WarnContext(
			ctx, "failed to persist relay list",
			slog.String("error", err.Error()),
			slog.String("module", "relays"),
		)
	}
}

// Relays returns the publish relays in sorted order.
func (s *RelaySet) Relays() []nostrconnect.RelayURL {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]nostrconnect.RelayURL, 0, len(s.relays))
	for r := range s.relays {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *RelaySet) ConnectRelay() nostrconnect.RelayURL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connect
}

// PublishTargets is the publish set, or the connect relay when it is empty.
func (s *RelaySet) PublishTargets() []nostrconnect.RelayURL {
	relays := s.Relays()
	if len(relays) == 0 {
		return []nostrconnect.RelayURL{s.ConnectRelay()}
	}
	return relays
}

// detach keeps ctx values but not its cancellation, so background work
// outlives the request that started it.
func detach(ctx context.Context, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	context.AfterFunc(ctx, cancel)
	return ctx
}
