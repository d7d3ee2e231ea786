package nostrconnect

import (
	"errors"
	"testing"
)

func TestInvitationIsDeterministic(t *testing.T) {
	_, pk := newKeypair(t)
	inv := Invitation{
		PublicKey: pk,
		Relay:     MustParseRelayURL("wss://relay.example/connect"),
		Name:      "dartstr",
	}

	s := inv.String()
	if s != inv.String() {
		t.Fatalf("invitation is not stable")
	}
	want := "nostrconnect://" + pk + "?relay=wss%3A%2F%2Frelay.example%2Fconnect&metadata=%7B%22name%22%3A%22dartstr%22%7D"
	if s != want {
		t.Fatalf("expected %s got %s", want, s)
	}

	parsed, err := ParseInvitation(s)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != inv {
		t.Fatalf("expected %+v got %+v", inv, parsed)
	}
}

func TestInvitationChangesWithRelay(t *testing.T) {
	_, pk := newKeypair(t)
	a := Invitation{PublicKey: pk, Relay: MustParseRelayURL("wss://a.example"), Name: "x"}
	b := a
	b.Relay = MustParseRelayURL("wss://b.example")
	if a.String() == b.String() {
		t.Fatalf("relay not reflected in invitation")
	}
}

func TestParseInvitationRejectsGarbage(t *testing.T) {
	_, pk := newKeypair(t)
	bad := []string{
		"https://" + pk + "?relay=wss%3A%2F%2Fa.example",
		"nostrconnect://nothex?relay=wss%3A%2F%2Fa.example",
		"nostrconnect://" + pk + "?relay=http%3A%2F%2Fa.example",
		"nostrconnect://" + pk + "?relay=wss%3A%2F%2Fa.example&metadata=%7B",
	}
	for _, s := range bad {
		if _, err := ParseInvitation(s); !errors.Is(err, ErrInvalidInvitation) {
			t.Fatalf("%q: expected ErrInvalidInvitation, got %v", s, err)
		}
	}
}
