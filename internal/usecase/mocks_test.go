package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

// --- store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]string{}}
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.NotFoundError{Resource: key}
	}
	return v, nil
}

func (m *mockStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string]string{}
	return nil
}

func (m *mockStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// --- transport ---

type mockTransport struct {
	mu           sync.Mutex
	connected    []nostrconnect.RelayURL
	disconnected []nostrconnect.RelayURL
	published    []nostr.Event
	publishedTo  [][]nostrconnect.RelayURL
	publishErr   error

	inFlight int32
	overlap  atomic.Bool
}

func (m *mockTransport) enter() func() {
	if atomic.AddInt32(&m.inFlight, 1) > 1 {
		m.overlap.Store(true)
	}
	return func() { atomic.AddInt32(&m.inFlight, -1) }
}

func (m *mockTransport) Connect(ctx context.Context, relay nostrconnect.RelayURL) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = append(m.connected, relay)
	return nil
}

func (m *mockTransport) Disconnect(ctx context.Context, relay nostrconnect.RelayURL) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, relay)
	return nil
}

func (m *mockTransport) Publish(ctx context.Context, relays []nostrconnect.RelayURL, ev nostr.Event) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, ev)
	m.publishedTo = append(m.publishedTo, relays)
	return nil
}

func (m *mockTransport) Subscribe(ctx context.Context, relay nostrconnect.RelayURL, filter nostr.Filter) (<-chan nostr.Event, error) {
	ch := make(chan nostr.Event)
	close(ch)
	return ch, nil
}

func (m *mockTransport) lastPublished(t *testing.T) nostr.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		t.Fatalf("nothing published")
	}
	return m.published[len(m.published)-1]
}

func (m *mockTransport) connectCount(relay nostrconnect.RelayURL) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.connected {
		if r == relay {
			n++
		}
	}
	return n
}

// --- remote signer ---

type mockRemote struct {
	signerSk string
	signerPk string

	keys         chan string
	ignoreCancel bool
	signErr      error
	signedOn     nostrconnect.RelayURL
	// delegatee overrides whom delegations are issued to.
	delegatee string
}

func newMockRemote(t *testing.T) *mockRemote {
	t.Helper()
	sk := nostrconnect.GenerateSecretKey()
	pk, err := nostrconnect.PublicKey(sk)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return &mockRemote{signerSk: sk, signerPk: pk, keys: make(chan string, 4)}
}

func (m *mockRemote) AwaitSignerKey(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, since time.Time) (string, error) {
	if m.ignoreCancel {
		return <-m.keys, nil
	}
	select {
	case k := <-m.keys:
		return k, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *mockRemote) RequestDelegation(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, cond nostrconnect.Conditions) (nostrconnect.DelegationCredential, error) {
	delegatee := id.PublicKey
	if m.delegatee != "" {
		delegatee = m.delegatee
	}
	return nostrconnect.SignDelegation(m.signerSk, delegatee, cond)
}

func (m *mockRemote) SignEvent(ctx context.Context, tr Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, ev nostr.Event) (nostr.Event, error) {
	m.signedOn = relay
	if m.signErr != nil {
		return nostr.Event{}, m.signErr
	}
	err := ev.Sign(m.signerSk)
	return ev, err
}

// --- notifier ---

type mockNotifier struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (m *mockNotifier) Notify(ctx context.Context, event domain.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockNotifier) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

// --- helpers ---

func wait[T any](t *testing.T, p *utils.Pending[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := p.Wait(ctx)
	if err == context.DeadlineExceeded && ctx.Err() != nil {
		t.Fatalf("timed out waiting for result")
	}
	return v, err
}

type fixture struct {
	session   *Session
	store     *mockStore
	transport *mockTransport
	remote    *mockRemote
	notifier  *mockNotifier
}

func testConfig() domain.SessionConfig {
	return domain.SessionConfig{
		Name:               "test",
		ConnectRelay:       "wss://relay.example/connect",
		HandshakeTimeout:   2 * time.Second,
		RequestTimeout:     2 * time.Second,
		QueueDepth:         16,
		DelegationKinds:    []int{1, 77},
		DelegationValidFor: 2 * time.Hour,
	}
}

func newFixture(t *testing.T, config domain.SessionConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMockStore(),
		transport: &mockTransport{},
		remote:    newMockRemote(t),
		notifier:  &mockNotifier{},
	}
	f.open(t, config)
	return f
}

func (f *fixture) open(t *testing.T, config domain.SessionConfig) {
	t.Helper()
	s, err := NewSession(context.Background(), config, f.store, f.transport, f.remote, f.notifier)
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	t.Cleanup(s.Close)
	f.session = s
}

func (f *fixture) bind(t *testing.T) {
	t.Helper()
	p := f.session.BeginHandshake(context.Background())
	f.remote.keys <- f.remote.signerPk
	key, err := wait(t, p)
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if key != f.remote.signerPk {
		t.Fatalf("expected signer %s got %s", f.remote.signerPk, key)
	}
}
