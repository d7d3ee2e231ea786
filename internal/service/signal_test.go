package service

import (
	"context"
	"testing"
	"time"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/infra/events"
)

func TestSignalRoundTrip(t *testing.T) {
	pubsub := events.NewGoChannel(events.NewLogger())
	defer pubsub.Close()

	signal := NewSignalService(pubsub.Publisher, pubsub.Subscriber, "test.session")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := signal.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sent := domain.SessionEvent{
		Type:      domain.EventSignerBound,
		Epoch:     2,
		PublicKey: "abc",
		Detail:    "signer",
		Time:      time.Now().UTC().Truncate(time.Second),
	}
	if err := signal.Notify(ctx, sent); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	select {
	case got := <-stream:
		if got.Type != sent.Type || got.Epoch != sent.Epoch || !got.Time.Equal(sent.Time) {
			t.Fatalf("expected %+v, got %+v", sent, got)
		}
	case <-ctx.Done():
		t.Fatalf("event not delivered")
	}
}

func TestSignalWithoutSubscriber(t *testing.T) {
	pubsub := events.NewGoChannel(events.NewLogger())
	defer pubsub.Close()

	signal := NewSignalService(pubsub.Publisher, nil, "test.session")
	if _, err := signal.Subscribe(context.Background()); err == nil {
		t.Fatalf("expected error without subscriber")
	}
	if err := signal.Notify(context.Background(), domain.SessionEvent{Type: domain.EventLogout}); err != nil {
		t.Fatalf("notify failed: %v", err)
	}
}
