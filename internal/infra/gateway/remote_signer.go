package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/usecase"
)

var tracer = otel.Tracer("gateway")

// RemoteSigner speaks NIP-46 over a usecase.Transport. Messages are nip04
// encrypted kind 24133 events addressed with a p tag.
type RemoteSigner struct {
	seen    *cache.Cache
	secrets *cache.Cache
}

func NewRemoteSigner() *RemoteSigner {
	return &RemoteSigner{
		seen:    cache.New(10*time.Minute, 15*time.Minute),
		secrets: cache.New(time.Hour, 2*time.Hour),
	}
}

func (g *RemoteSigner) sharedSecret(id domain.Identity, peer string) ([]byte, error) {
	key := id.PublicKey + ":" + peer
	if cached, found := g.secrets.Get(key); found {
		return cached.([]byte), nil
	}
	secret, err := nip04.ComputeSharedSecret(peer, id.SecretKey)
	if err != nil {
		return nil, err
	}
	g.secrets.Set(key, secret, cache.DefaultExpiration)
	return secret, nil
}

// open decrypts ev into a message. Events seen before are rejected so a
// message relayed twice is handled once. Only authentic events are recorded
// as seen.
func (g *RemoteSigner) open(id domain.Identity, ev nostr.Event) (nostrconnect.Message, error) {
	if ev.GetID() != ev.ID {
		return nostrconnect.Message{}, fmt.Errorf("event id mismatch for %s", ev.ID)
	}
	if ok, err := ev.CheckSignature(); !ok {
		if err == nil {
			err = nostrconnect.ErrInvalidSignature
		}
		return nostrconnect.Message{}, err
	}
	if err := g.seen.Add(ev.ID, struct{}{}, cache.DefaultExpiration); err != nil {
		return nostrconnect.Message{}, fmt.Errorf("duplicate event %s", ev.ID)
	}

	secret, err := g.sharedSecret(id, ev.PubKey)
	if err != nil {
		return nostrconnect.Message{}, err
	}
	plain, err := nip04.Decrypt(ev.Content, secret)
	if err != nil {
		return nostrconnect.Message{}, err
	}

	var msg nostrconnect.Message
	if err := json.Unmarshal([]byte(plain), &msg); err != nil {
		return nostrconnect.Message{}, err
	}
	return msg, nil
}

func (g *RemoteSigner) seal(id domain.Identity, peer string, v any) (nostr.Event, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nostr.Event{}, err
	}
	secret, err := g.sharedSecret(id, peer)
	if err != nil {
		return nostr.Event{}, err
	}
	content, err := nip04.Encrypt(string(raw), secret)
	if err != nil {
		return nostr.Event{}, err
	}

	ev := nostr.Event{
		Kind:      nostrconnect.KindNostrConnect,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", peer}},
		Content:   content,
	}
	if err := ev.Sign(id.SecretKey); err != nil {
		return nostr.Event{}, err
	}
	return ev, nil
}

func inbox(id domain.Identity, since nostr.Timestamp, authors ...string) nostr.Filter {
	filter := nostr.Filter{
		Kinds: []int{nostrconnect.KindNostrConnect},
		Tags:  nostr.TagMap{"p": []string{id.PublicKey}},
		Since: &since,
	}
	if len(authors) > 0 {
		filter.Authors = authors
	}
	return filter
}

// AwaitSignerKey waits for a connect request addressed to id, acks it and
// asks the signer which key it signs with. Requests are addressed to the
// signer's transport key, so that key must be the one it signs with.
func (g *RemoteSigner) AwaitSignerKey(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, since time.Time) (string, error) {
	ctx, span := tracer.Start(ctx, "Gateway.RemoteSigner.AwaitSignerKey")
	defer span.End()

	if err := tr.Connect(ctx, relay); err != nil {
		span.RecordError(err)
		return "", domain.TransportError{Op: "connect " + relay.String(), Err: err}
	}

	peer, err := g.awaitConnect(ctx, tr, id, relay, nostr.Timestamp(since.Unix()))
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	key, err := g.GetPublicKey(ctx, tr, id, relay, peer)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if key != peer {
		err := domain.TransportError{
			Op:  "handshake",
			Err: errors.Wrapf(nostrconnect.ErrInvalidKey, "signer %s signs as %s", peer, key),
		}
		span.RecordError(err)
		return "", err
	}
	return key, nil
}

// awaitConnect returns the author of the first connect request on relay,
// after acking it.
func (g *RemoteSigner) awaitConnect(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, since nostr.Timestamp) (string, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := tr.Subscribe(sctx, relay, inbox(id, since))
	if err != nil {
		return "", domain.TransportError{Op: "subscribe", Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", domain.TransportError{Op: "subscribe", Err: errors.New("subscription closed")}
			}
			msg, err := g.open(id, ev)
			if err != nil {
				slog.DebugContext(
					ctx, "ignoring message",
					slog.String("event", ev.ID),
					slog.String("error", err.Error()),
					slog.String("module", "gateway"),
				)
				continue
			}
			if !msg.IsRequest() || msg.Method != nostrconnect.MethodConnect {
				continue
			}

			ack, err := nostrconnect.NewResult(msg.ID, "ack")
			if err == nil {
				err = g.publish(ctx, tr, id, relay, ev.PubKey, ack)
			}
			if err != nil {
				slog.WarnContext(
					ctx, "failed to ack connect",
					slog.String("error", err.Error()),
					slog.String("module", "gateway"),
				)
			}
			return ev.PubKey, nil
		}
	}
}

func (g *RemoteSigner) publish(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, peer string, v any) error {
	ev, err := g.seal(id, peer, v)
	if err != nil {
		return err
	}
	return tr.Publish(ctx, []nostrconnect.RelayURL{relay}, ev)
}

// call sends a request to signer and waits for the response with the same id.
func (g *RemoteSigner) call(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, signer, method string, params ...string) (nostrconnect.Response, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := tr.Subscribe(sctx, relay, inbox(id, nostr.Now(), signer))
	if err != nil {
		return nostrconnect.Response{}, domain.TransportError{Op: "subscribe", Err: err}
	}

	req := nostrconnect.Request{ID: uuid.NewString(), Method: method, Params: params}
	if err := g.publish(ctx, tr, id, relay, signer, req); err != nil {
		return nostrconnect.Response{}, domain.TransportError{Op: method, Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return nostrconnect.Response{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nostrconnect.Response{}, ctx.Err()
				}
				return nostrconnect.Response{}, domain.TransportError{Op: method, Err: errors.New("subscription closed")}
			}
			if ev.PubKey != signer {
				continue
			}
			msg, err := g.open(id, ev)
			if err != nil || msg.IsRequest() || msg.ID != req.ID {
				continue
			}
			resp := msg.Response()
			if resp.Error != "" {
				return resp, errors.Wrap(domain.ErrRemoteSigner, resp.Error)
			}
			return resp, nil
		}
	}
}

// RequestDelegation asks signer for a credential to id limited by cond. The
// credential is returned only if it verifies for id.
func (g *RemoteSigner) RequestDelegation(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, cond nostrconnect.Conditions) (nostrconnect.DelegationCredential, error) {
	ctx, span := tracer.Start(ctx, "Gateway.RemoteSigner.RequestDelegation")
	defer span.End()

	resp, err := g.call(ctx, tr, id, relay, signer, nostrconnect.MethodDelegate, id.PublicKey, cond.String())
	if err != nil {
		span.RecordError(err)
		return nostrconnect.DelegationCredential{}, err
	}

	var result nostrconnect.DelegationResult
	if err := resp.Decode(&result); err != nil {
		return nostrconnect.DelegationCredential{}, domain.UntrustedDelegationError{Err: err}
	}
	if result.To != "" && result.To != id.PublicKey {
		return nostrconnect.DelegationCredential{}, domain.UntrustedDelegationError{
			Delegator: result.From,
			Err:       fmt.Errorf("issued to %s", result.To),
		}
	}

	cred, err := result.Credential()
	if err != nil {
		return nostrconnect.DelegationCredential{}, domain.UntrustedDelegationError{Delegator: result.From, Err: err}
	}
	if err := cred.Verify(id.PublicKey); err != nil {
		return nostrconnect.DelegationCredential{}, domain.UntrustedDelegationError{Delegator: result.From, Err: err}
	}
	return cred, nil
}

// SignEvent has signer sign ev. Signers answer with either the signed event
// or only the signature.
func (g *RemoteSigner) SignEvent(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string, ev nostr.Event) (nostr.Event, error) {
	ctx, span := tracer.Start(ctx, "Gateway.RemoteSigner.SignEvent")
	defer span.End()

	ev.PubKey = signer
	ev.ID = ev.GetID()
	raw, err := json.Marshal(ev)
	if err != nil {
		return nostr.Event{}, err
	}

	resp, err := g.call(ctx, tr, id, relay, signer, nostrconnect.MethodSignEvent, string(raw))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrRemoteSigner) {
			return nostr.Event{}, domain.SigningError{Err: err}
		}
		return nostr.Event{}, err
	}

	var sig string
	if err := json.Unmarshal(resp.Result, &sig); err == nil && isSignature(sig) {
		ev.Sig = sig
		return ev, nil
	}

	var signed nostr.Event
	if err := resp.Decode(&signed); err != nil {
		return nostr.Event{}, domain.SigningError{Err: err}
	}
	return signed, nil
}

// GetPublicKey asks signer for the key it signs with. Some signers answer
// with an npub.
func (g *RemoteSigner) GetPublicKey(ctx context.Context, tr usecase.Transport, id domain.Identity, relay nostrconnect.RelayURL, signer string) (string, error) {
	resp, err := g.call(ctx, tr, id, relay, signer, nostrconnect.MethodGetPublicKey)
	if err != nil {
		return "", err
	}
	var raw string
	if err := resp.Decode(&raw); err != nil {
		return "", domain.TransportError{Op: nostrconnect.MethodGetPublicKey, Err: err}
	}
	pk, err := nostrconnect.DecodePublicKey(raw)
	if err != nil {
		return "", domain.TransportError{Op: nostrconnect.MethodGetPublicKey, Err: err}
	}
	return pk, nil
}

func isSignature(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 64
}
