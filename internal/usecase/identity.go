package usecase

import (
	"context"
	"log/slog"

	"github.com/nbd-wtf/go-nostr"
	"github.com/pkg/errors"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
)

// KeyHolder holds the local keypair of a session.
type KeyHolder struct {
	identity domain.Identity
}

func identityFromSecret(sk string) (domain.Identity, error) {
	pk, err := nostrconnect.PublicKey(sk)
	if err != nil {
		return domain.Identity{}, err
	}
	npub, err := nostrconnect.EncodeNpub(pk)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{SecretKey: sk, PublicKey: pk, Npub: npub}, nil
}

// CreateOrRestore loads the stored key material, or generates and stores a
// new key when there is none. Malformed material counts as none.
func CreateOrRestore(ctx context.Context, store RecordStore) (*KeyHolder, error) {
	sk, err := store.Get(ctx, domain.RecordPrivateKey)
	switch {
	case err == nil:
		if id, err := identityFromSecret(sk); err == nil {
			return &KeyHolder{identity: id}, nil
		}
		slog.WarnContext(
			ctx, "stored key material is malformed, generating a new key",
			slog.String("module", "identity"),
		)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, errors.Wrap(err, "read key material")
	}

	id, err := identityFromSecret(nostrconnect.GenerateSecretKey())
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, domain.RecordPrivateKey, id.SecretKey); err != nil {
		return nil, errors.Wrap(err, "store key material")
	}

	slog.InfoContext(
		ctx, "generated identity",
		slog.String("npub", id.Npub),
		slog.String("module", "identity"),
	)
	return &KeyHolder{identity: id}, nil
}

func (k *KeyHolder) Identity() domain.Identity {
	return k.identity
}

func (k *KeyHolder) PublicKey() string {
	return k.identity.PublicKey
}

func (k *KeyHolder) Npub() string {
	return k.identity.Npub
}

// Sign sets ev's pubkey to the local key and signs it.
func (k *KeyHolder) Sign(ev *nostr.Event) error {
	ev.PubKey = k.identity.PublicKey
	return ev.Sign(k.identity.SecretKey)
}
