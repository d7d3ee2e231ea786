package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
session:
  name: myapp
  connectRelay: wss://relay.example/connect
  relays:
    - wss://a.example
    - wss://b.example
  handshakeTimeout: 45s
delegation:
  kinds: [1]
  validFor: 1h
  dropSignerAfterInstall: true
store:
  driver: bolt
  path: /tmp/session.db
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if c.Session.Name != "myapp" || c.Session.ConnectRelay != "wss://relay.example/connect" {
		t.Fatalf("unexpected session section: %+v", c.Session)
	}
	if len(c.Session.Relays) != 2 {
		t.Fatalf("expected 2 relays got %d", len(c.Session.Relays))
	}
	if c.Session.HandshakeTimeout != 45*time.Second {
		t.Fatalf("expected 45s got %s", c.Session.HandshakeTimeout)
	}
	if c.Session.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default request timeout, got %s", c.Session.RequestTimeout)
	}
	if c.Delegation.ValidFor != time.Hour || !c.Delegation.DropSignerAfterInstall {
		t.Fatalf("unexpected delegation section: %+v", c.Delegation)
	}
	if c.Store.Driver != "bolt" {
		t.Fatalf("expected bolt driver got %s", c.Store.Driver)
	}

	sc := c.SessionConfig()
	if len(sc.DelegationKinds) != 1 || sc.DelegationKinds[0] != 1 {
		t.Fatalf("unexpected kinds %v", sc.DelegationKinds)
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(PassphraseEnv, "secret")

	c, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load default failed: %v", err)
	}
	if c.Session.ConnectRelay != "ws://localhost:8081" {
		t.Fatalf("unexpected default relay %s", c.Session.ConnectRelay)
	}
	if c.Store.Passphrase != "secret" {
		t.Fatalf("expected passphrase from env")
	}
	if len(c.Delegation.Kinds) != 2 {
		t.Fatalf("expected default kinds, got %v", c.Delegation.Kinds)
	}
}
