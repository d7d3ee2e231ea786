package nostrconnect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

func GenerateSecretKey() string {
	return nostr.GeneratePrivateKey()
}

// ValidSecretKey reports whether sk is 32 bytes of hex encoding a non-zero
// scalar below the secp256k1 group order.
func ValidSecretKey(sk string) bool {
	if len(sk) != 64 {
		return false
	}
	b, err := hex.DecodeString(sk)
	if err != nil {
		return false
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return false
	}
	return !s.IsZero()
}

func ValidPublicKey(pk string) bool {
	if len(pk) != 64 {
		return false
	}
	b, err := hex.DecodeString(pk)
	if err != nil {
		return false
	}
	_, err = schnorr.ParsePubKey(b)
	return err == nil
}

// PublicKey derives the x-only hex public key of a hex secret key.
func PublicKey(sk string) (string, error) {
	if !ValidSecretKey(sk) {
		return "", ErrInvalidKey
	}
	return nostr.GetPublicKey(sk)
}

func EncodeNpub(pk string) (string, error) {
	if !ValidPublicKey(pk) {
		return "", ErrInvalidKey
	}
	return nip19.EncodePublicKey(pk)
}

// DecodePublicKey accepts either hex or an npub and returns hex.
func DecodePublicKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		prefix, data, err := nip19.Decode(s)
		if err != nil || prefix != "npub" {
			return "", fmt.Errorf("%w: %s", ErrInvalidKey, s)
		}
		pk, ok := data.(string)
		if !ok || !ValidPublicKey(pk) {
			return "", fmt.Errorf("%w: %s", ErrInvalidKey, s)
		}
		return pk, nil
	}
	s = strings.ToLower(s)
	if !ValidPublicKey(s) {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, s)
	}
	return s, nil
}

// SignBytes returns the BIP-340 signature of sha256(msg) under sk.
func SignBytes(msg []byte, sk string) ([]byte, error) {
	if !ValidSecretKey(sk) {
		return nil, ErrInvalidKey
	}
	b, _ := hex.DecodeString(sk)
	priv, _ := btcec.PrivKeyFromBytes(b)

	hash := sha256.Sum256(msg)
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifySignature checks a SignBytes signature against the hex public key pk.
func VerifySignature(msg, sig []byte, pk string) error {
	b, err := hex.DecodeString(pk)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKey, pk)
	}
	pub, err := schnorr.ParsePubKey(b)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKey, pk)
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return ErrInvalidSignature
	}
	hash := sha256.Sum256(msg)
	if !parsed.Verify(hash[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}
