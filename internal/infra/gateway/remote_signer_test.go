package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
)

const testRelay = nostrconnect.RelayURL("wss://relay.example")

// bus is an in-memory relay shared by the app and the fake signer.
type bus struct {
	mu         sync.Mutex
	subs       []*busSub
	published  []nostr.Event
	subscribed chan struct{}
}

type busSub struct {
	filter nostr.Filter
	ch     chan nostr.Event
	ctx    context.Context
}

func newBus() *bus {
	return &bus{subscribed: make(chan struct{}, 16)}
}

func (b *bus) Connect(ctx context.Context, relay nostrconnect.RelayURL) error    { return nil }
func (b *bus) Disconnect(ctx context.Context, relay nostrconnect.RelayURL) error { return nil }

func (b *bus) Publish(ctx context.Context, relays []nostrconnect.RelayURL, ev nostr.Event) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	var targets []*busSub
	for _, s := range b.subs {
		if s.ctx.Err() == nil && s.filter.Matches(&ev) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		case <-s.ctx.Done():
		}
	}
	return nil
}

func (b *bus) Subscribe(ctx context.Context, relay nostrconnect.RelayURL, filter nostr.Filter) (<-chan nostr.Event, error) {
	s := &busSub{filter: filter, ch: make(chan nostr.Event, 16), ctx: ctx}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	b.subscribed <- struct{}{}
	return s.ch, nil
}

func keypair(t *testing.T) (string, string) {
	t.Helper()
	sk := nostrconnect.GenerateSecretKey()
	pk, err := nostrconnect.PublicKey(sk)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return sk, pk
}

func identity(t *testing.T) domain.Identity {
	sk, pk := keypair(t)
	return domain.Identity{SecretKey: sk, PublicKey: pk}
}

// fakeSigner answers requests the way a signing app would.
type fakeSigner struct {
	sk, pk string
	app    string
	bus    *bus

	delegateTo string
	fail       string
	sigOnly    bool
	// signsAs overrides the get_public_key answer.
	signsAs string
}

func (s *fakeSigner) seal(t *testing.T, v any) nostr.Event {
	raw, _ := json.Marshal(v)
	secret, err := nip04.ComputeSharedSecret(s.app, s.sk)
	if err != nil {
		t.Errorf("shared secret failed: %v", err)
		return nostr.Event{}
	}
	content, err := nip04.Encrypt(string(raw), secret)
	if err != nil {
		t.Errorf("encrypt failed: %v", err)
		return nostr.Event{}
	}
	ev := nostr.Event{
		Kind:      nostrconnect.KindNostrConnect,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", s.app}},
		Content:   content,
	}
	if err := ev.Sign(s.sk); err != nil {
		t.Errorf("sign failed: %v", err)
	}
	return ev
}

func (s *fakeSigner) send(t *testing.T, v any) nostr.Event {
	ev := s.seal(t, v)
	s.bus.Publish(context.Background(), nil, ev)
	return ev
}

// serve answers requests addressed to the signer until ctx is done. It
// consumes its own subscription notice.
func (s *fakeSigner) serve(t *testing.T, ctx context.Context) {
	since := nostr.Timestamp(0)
	events, _ := s.bus.Subscribe(ctx, testRelay, nostr.Filter{
		Kinds: []int{nostrconnect.KindNostrConnect},
		Tags:  nostr.TagMap{"p": []string{s.pk}},
		Since: &since,
	})
	<-s.bus.subscribed

	go func() {
		secret, _ := nip04.ComputeSharedSecret(s.app, s.sk)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				plain, err := nip04.Decrypt(ev.Content, secret)
				if err != nil {
					continue
				}
				var req nostrconnect.Request
				if err := json.Unmarshal([]byte(plain), &req); err != nil || req.Method == "" {
					continue
				}
				if s.fail != "" {
					s.send(t, nostrconnect.Response{ID: req.ID, Error: s.fail})
					continue
				}
				s.send(t, s.answer(t, req))
			}
		}
	}()
}

func (s *fakeSigner) answer(t *testing.T, req nostrconnect.Request) nostrconnect.Response {
	switch req.Method {
	case nostrconnect.MethodDelegate:
		cond, err := nostrconnect.ParseConditions(req.Params[1])
		if err != nil {
			return nostrconnect.Response{ID: req.ID, Error: err.Error()}
		}
		to := req.Params[0]
		if s.delegateTo != "" {
			to = s.delegateTo
		}
		cred, err := nostrconnect.SignDelegation(s.sk, to, cond)
		if err != nil {
			return nostrconnect.Response{ID: req.ID, Error: err.Error()}
		}
		resp, _ := nostrconnect.NewResult(req.ID, nostrconnect.DelegationResult{
			From: cred.Delegator,
			To:   to,
			Cond: cred.Conditions.String(),
			Sig:  cred.Signature,
		})
		return resp
	case nostrconnect.MethodSignEvent:
		var ev nostr.Event
		if err := json.Unmarshal([]byte(req.Params[0]), &ev); err != nil {
			return nostrconnect.Response{ID: req.ID, Error: err.Error()}
		}
		if err := ev.Sign(s.sk); err != nil {
			return nostrconnect.Response{ID: req.ID, Error: err.Error()}
		}
		if s.sigOnly {
			resp, _ := nostrconnect.NewResult(req.ID, ev.Sig)
			return resp
		}
		raw, _ := json.Marshal(ev)
		resp, _ := nostrconnect.NewResult(req.ID, string(raw))
		return resp
	case nostrconnect.MethodGetPublicKey:
		pk := s.pk
		if s.signsAs != "" {
			pk = s.signsAs
		}
		resp, _ := nostrconnect.NewResult(req.ID, pk)
		return resp
	}
	return nostrconnect.Response{ID: req.ID, Error: "unsupported"}
}

func setup(t *testing.T) (context.Context, *bus, domain.Identity, *fakeSigner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	b := newBus()
	id := identity(t)
	sk, pk := keypair(t)
	signer := &fakeSigner{sk: sk, pk: pk, app: id.PublicKey, bus: b}
	return ctx, b, id, signer
}

func TestAwaitSignerKey(t *testing.T) {
	ctx, b, id, signer := setup(t)
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	go func() {
		<-b.subscribed
		ev := signer.send(t, nostrconnect.Request{ID: "c1", Method: nostrconnect.MethodConnect, Params: []string{signer.pk}})
		// relayed twice
		b.Publish(ctx, nil, ev)
	}()

	key, err := g.AwaitSignerKey(ctx, b, id, testRelay, time.Now())
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if key != signer.pk {
		t.Fatalf("expected %s got %s", signer.pk, key)
	}

	secret, _ := nip04.ComputeSharedSecret(signer.pk, id.SecretKey)

	b.mu.Lock()
	defer b.mu.Unlock()
	var acks, keyRequests int
	for _, ev := range b.published {
		if ev.PubKey != id.PublicKey {
			continue
		}
		if p := ev.Tags.GetFirst([]string{"p", ""}); p == nil || p.Value() != signer.pk {
			t.Fatalf("message not addressed to the signer: %v", ev.Tags)
		}
		plain, err := nip04.Decrypt(ev.Content, secret)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		var msg nostrconnect.Message
		if err := json.Unmarshal([]byte(plain), &msg); err != nil {
			t.Fatalf("malformed message: %v", err)
		}
		switch {
		case msg.IsRequest() && msg.Method == nostrconnect.MethodGetPublicKey:
			keyRequests++
		case !msg.IsRequest() && msg.ID == "c1":
			acks++
		}
	}
	if acks != 1 {
		t.Fatalf("expected one ack, got %d", acks)
	}
	if keyRequests != 1 {
		t.Fatalf("expected one get_public_key request, got %d", keyRequests)
	}
}

func TestAwaitSignerKeyRejectsForeignSigningKey(t *testing.T) {
	ctx, b, id, signer := setup(t)
	_, signer.signsAs = keypair(t)
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	go func() {
		<-b.subscribed
		signer.send(t, nostrconnect.Request{ID: "c1", Method: nostrconnect.MethodConnect})
	}()

	_, err := g.AwaitSignerKey(ctx, b, id, testRelay, time.Now())
	if !errors.Is(err, domain.ErrTransportFailure) || !errors.Is(err, nostrconnect.ErrInvalidKey) {
		t.Fatalf("expected a transport failure for a foreign key, got %v", err)
	}
}

func TestAwaitSignerKeyUsesHandshakeStart(t *testing.T) {
	_, b, id, _ := setup(t)
	g := NewRemoteSigner()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now().Add(-time.Minute)
	g.AwaitSignerKey(ctx, b, id, testRelay, start)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) == 0 {
		t.Fatalf("expected a subscription")
	}
	since := b.subs[0].filter.Since
	if since == nil || int64(*since) != start.Unix() {
		t.Fatalf("expected since %d got %v", start.Unix(), since)
	}
}

func TestAwaitSignerKeyHonoursContext(t *testing.T) {
	_, b, id, _ := setup(t)
	g := NewRemoteSigner()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.AwaitSignerKey(ctx, b, id, testRelay, time.Now())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestForgedIDDoesNotShadowGenuineEvent(t *testing.T) {
	_, _, id, signer := setup(t)
	g := NewRemoteSigner()

	genuine := signer.seal(t, nostrconnect.Request{ID: "c1", Method: nostrconnect.MethodConnect})

	forged := signer.seal(t, nostrconnect.Request{ID: "evil", Method: nostrconnect.MethodConnect})
	forged.ID = genuine.ID
	if _, err := g.open(id, forged); err == nil {
		t.Fatalf("expected forged event to be rejected")
	}

	resigned := genuine
	resigned.Sig = forged.Sig
	if _, err := g.open(id, resigned); err == nil {
		t.Fatalf("expected bad signature to be rejected")
	}

	msg, err := g.open(id, genuine)
	if err != nil {
		t.Fatalf("genuine event was dropped: %v", err)
	}
	if msg.ID != "c1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if _, err := g.open(id, genuine); err == nil {
		t.Fatalf("expected a repeat to be rejected")
	}
}

func TestRequestDelegation(t *testing.T) {
	ctx, b, id, signer := setup(t)
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	cond, err := nostrconnect.ParseConditions("kind=1&created_at>1700000000")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cred, err := g.RequestDelegation(ctx, b, id, testRelay, signer.pk, cond)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if cred.Delegator != signer.pk {
		t.Fatalf("expected delegator %s got %s", signer.pk, cred.Delegator)
	}
	if err := cred.Verify(id.PublicKey); err != nil {
		t.Fatalf("credential does not verify: %v", err)
	}
}

func TestRequestDelegationForSomeoneElse(t *testing.T) {
	ctx, b, id, signer := setup(t)
	_, other := keypair(t)
	signer.delegateTo = other
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	cond, _ := nostrconnect.ParseConditions("kind=1")
	_, err := g.RequestDelegation(ctx, b, id, testRelay, signer.pk, cond)
	if !errors.Is(err, domain.ErrUntrustedDelegation) {
		t.Fatalf("expected ErrUntrustedDelegation, got %v", err)
	}
}

func TestSignEvent(t *testing.T) {
	for _, sigOnly := range []bool{false, true} {
		ctx, b, id, signer := setup(t)
		signer.sigOnly = sigOnly
		signer.serve(t, ctx)
		g := NewRemoteSigner()

		ev := nostr.Event{Kind: 1, CreatedAt: nostr.Now(), Tags: nostr.Tags{}, Content: "remote"}
		signed, err := g.SignEvent(ctx, b, id, testRelay, signer.pk, ev)
		if err != nil {
			t.Fatalf("sigOnly=%v: sign failed: %v", sigOnly, err)
		}
		if signed.PubKey != signer.pk {
			t.Fatalf("sigOnly=%v: unexpected author %s", sigOnly, signed.PubKey)
		}
		if ok, err := signed.CheckSignature(); !ok {
			t.Fatalf("sigOnly=%v: bad signature: %v", sigOnly, err)
		}
	}
}

func TestSignerError(t *testing.T) {
	ctx, b, id, signer := setup(t)
	signer.fail = "user rejected"
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	_, err := g.SignEvent(ctx, b, id, testRelay, signer.pk, nostr.Event{Kind: 1, CreatedAt: nostr.Now()})
	if !errors.Is(err, domain.ErrSigningFailure) || !errors.Is(err, domain.ErrRemoteSigner) {
		t.Fatalf("expected a remote signing failure, got %v", err)
	}
}

func TestGetPublicKey(t *testing.T) {
	ctx, b, id, signer := setup(t)
	signer.serve(t, ctx)
	g := NewRemoteSigner()

	pk, err := g.GetPublicKey(ctx, b, id, testRelay, signer.pk)
	if err != nil {
		t.Fatalf("get_public_key failed: %v", err)
	}
	if pk != signer.pk {
		t.Fatalf("expected %s got %s", signer.pk, pk)
	}

	signer.signsAs, _ = nostrconnect.EncodeNpub(signer.pk)
	pk, err = g.GetPublicKey(ctx, b, id, testRelay, signer.pk)
	if err != nil || pk != signer.pk {
		t.Fatalf("npub answer not decoded: %q %v", pk, err)
	}
}
