package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
)

func TestAddRelayIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	p, err := f.session.AddRelay(ctx, "wss://a.example/")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := wait(t, p); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	p, err = f.session.AddRelay(ctx, "WSS://A.example:443")
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if _, err := wait(t, p); err != nil {
		t.Fatalf("second connect failed: %v", err)
	}

	relays := f.session.Relays()
	if len(relays) != 1 || relays[0] != "wss://a.example" {
		t.Fatalf("expected one relay, got %v", relays)
	}
	if n := f.transport.connectCount("wss://a.example"); n != 1 {
		t.Fatalf("expected one connect, got %d", n)
	}
	if !f.store.has(domain.RecordPublishRelays) {
		t.Fatalf("expected relay list to be persisted")
	}
}

func TestAddRelayRejectsMalformedInput(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.session.AddRelay(context.Background(), "https://a.example")
	if !errors.Is(err, domain.ErrInvalidRelayURI) {
		t.Fatalf("expected ErrInvalidRelayURI, got %v", err)
	}
	if len(f.session.Relays()) != 0 {
		t.Fatalf("state changed on invalid input")
	}
}

func TestRemoveRelay(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	if _, err := wait(t, f.session.RemoveRelay(ctx, "wss://absent.example")); err != nil {
		t.Fatalf("removing an absent relay should be a no-op, got %v", err)
	}
	if _, err := wait(t, f.session.RemoveRelay(ctx, "::garbage::")); err != nil {
		t.Fatalf("removing garbage should be a no-op, got %v", err)
	}

	p, _ := f.session.AddRelay(ctx, "wss://a.example")
	wait(t, p)
	if _, err := wait(t, f.session.RemoveRelay(ctx, "wss://a.example")); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if len(f.session.Relays()) != 0 {
		t.Fatalf("expected empty set, got %v", f.session.Relays())
	}

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	if len(f.transport.disconnected) != 1 || f.transport.disconnected[0] != "wss://a.example" {
		t.Fatalf("expected disconnect, got %v", f.transport.disconnected)
	}
}

func TestConnectRelayIsIndependentOfPublishSet(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	p, _ := f.session.AddRelay(ctx, "wss://a.example")
	wait(t, p)

	if _, err := f.session.SetConnectRelay(ctx, "wss://b.example"); err != nil {
		t.Fatalf("set connect relay failed: %v", err)
	}
	if got := f.session.Relays(); len(got) != 1 || got[0] != "wss://a.example" {
		t.Fatalf("publish set changed: %v", got)
	}

	p, _ = f.session.AddRelay(ctx, "wss://c.example")
	wait(t, p)
	wait(t, f.session.RemoveRelay(ctx, "wss://a.example"))
	if got := f.session.ConnectRelay(); got != "wss://b.example" {
		t.Fatalf("connect relay changed: %s", got)
	}

	if _, err := f.session.SetConnectRelay(ctx, "ftp://x"); !errors.Is(err, domain.ErrInvalidRelayURI) {
		t.Fatalf("expected ErrInvalidRelayURI, got %v", err)
	}
	if got := f.session.ConnectRelay(); got != "wss://b.example" {
		t.Fatalf("connect relay changed on invalid input: %s", got)
	}
}

func TestPublishTargetsFallBackToConnectRelay(t *testing.T) {
	f := newFixture(t, testConfig())

	targets := f.session.relays.PublishTargets()
	if len(targets) != 1 || targets[0] != nostrconnect.RelayURL("wss://relay.example/connect") {
		t.Fatalf("unexpected targets %v", targets)
	}
}

func TestRelaysSurviveRestart(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	p, _ := f.session.AddRelay(ctx, "wss://a.example")
	wait(t, p)
	f.session.SetConnectRelay(ctx, "wss://b.example")
	f.session.Close()

	f.open(t, testConfig())
	if got := f.session.Relays(); len(got) != 1 || got[0] != "wss://a.example" {
		t.Fatalf("relays not restored: %v", got)
	}
	if got := f.session.ConnectRelay(); got != "wss://b.example" {
		t.Fatalf("connect relay not restored: %s", got)
	}
}
