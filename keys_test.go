package nostrconnect

import (
	"errors"
	"testing"
)

func TestKeys(t *testing.T) {
	sk := GenerateSecretKey()
	if !ValidSecretKey(sk) {
		t.Fatalf("generated key is invalid")
	}
	if ValidSecretKey("00") || ValidSecretKey("0000000000000000000000000000000000000000000000000000000000000000") {
		t.Fatalf("accepted a malformed secret key")
	}

	pk, err := PublicKey(sk)
	if err != nil || !ValidPublicKey(pk) {
		t.Fatalf("public key derivation failed: %v", err)
	}

	npub, err := EncodeNpub(pk)
	if err != nil {
		t.Fatalf("npub encoding failed: %v", err)
	}
	decoded, err := DecodePublicKey(npub)
	if err != nil || decoded != pk {
		t.Fatalf("expected %s got %s (%v)", pk, decoded, err)
	}

	if _, err := DecodePublicKey("npub1garbage"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSignBytes(t *testing.T) {
	sk := GenerateSecretKey()
	pk, _ := PublicKey(sk)

	sig, err := SignBytes([]byte("payload"), sk)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := VerifySignature([]byte("payload"), sig, pk); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := VerifySignature([]byte("other"), sig, pk); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if _, err := SignBytes([]byte("payload"), "nope"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
