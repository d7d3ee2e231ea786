package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/totegamma/nostrconnect/internal/domain"
)

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, event domain.SessionEvent) error {
	return errors.New("down")
}

func TestNotifierCountsEvents(t *testing.T) {
	m := NewMetrics()
	n := m.Notifier(nil)
	ctx := context.Background()

	for _, ev := range []domain.SessionEvent{
		{Type: domain.EventSignerBound, Epoch: 3},
		{Type: domain.EventSignerBound, Epoch: 3},
		{Type: domain.EventNotePublished, Epoch: 4},
	} {
		if err := n.Notify(ctx, ev); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
	}

	if v := testutil.ToFloat64(m.sessionEvents.WithLabelValues(domain.EventSignerBound)); v != 2 {
		t.Fatalf("expected 2 bound events got %v", v)
	}
	if v := testutil.ToFloat64(m.signerEpoch); v != 4 {
		t.Fatalf("expected epoch 4 got %v", v)
	}

	failing := m.Notifier(failingNotifier{})
	if err := failing.Notify(ctx, domain.SessionEvent{Type: domain.EventLogout}); err == nil {
		t.Fatalf("expected the downstream error")
	}
	if v := testutil.ToFloat64(m.notifyErrors); v != 1 {
		t.Fatalf("expected 1 notify error got %v", v)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.Notifier(nil).Notify(context.Background(), domain.SessionEvent{Type: domain.EventRelayAdded})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `nostrconnect_session_events_total{type="relay.added"} 1`) {
		t.Fatalf("counter missing from scrape:\n%s", body)
	}
}
