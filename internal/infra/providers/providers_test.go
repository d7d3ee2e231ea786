package providers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/totegamma/nostrconnect/internal/config"
	"github.com/totegamma/nostrconnect/internal/domain"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, conf := range []config.Store{
		{Driver: "memory"},
		{Driver: "file", Path: filepath.Join(dir, "default.session")},
		{Driver: "bolt", Path: filepath.Join(dir, "session.db")},
	} {
		store, closer, err := NewStore(ctx, conf, "default")
		if err != nil {
			t.Fatalf("%s: open failed: %v", conf.Driver, err)
		}

		if err := store.Set(ctx, domain.RecordConnectRelay, "wss://relay.example"); err != nil {
			t.Fatalf("%s: set failed: %v", conf.Driver, err)
		}
		v, err := store.Get(ctx, domain.RecordConnectRelay)
		if err != nil || v != "wss://relay.example" {
			t.Fatalf("%s: unexpected value %q (%v)", conf.Driver, v, err)
		}

		if err := closer(); err != nil {
			t.Fatalf("%s: close failed: %v", conf.Driver, err)
		}
	}

	if _, _, err := NewStore(ctx, config.Store{Driver: "tape"}, "default"); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}

func TestNewPubSubInProcess(t *testing.T) {
	pubsub, err := NewPubSub(context.Background(), config.Events{Topic: "t"})
	if err != nil {
		t.Fatalf("pubsub failed: %v", err)
	}
	if pubsub.Subscriber == nil {
		t.Fatalf("expected a subscriber")
	}
	if err := pubsub.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
