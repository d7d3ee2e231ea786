package nostrconnect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr"
)

const (
	delegationTokenPrefix = "nostr:delegation:"
	DelegationTagName     = "delegation"
)

// DelegationToken is the digest a delegator signs to let delegatee author
// events under cond.
func DelegationToken(delegatee string, cond Conditions) [32]byte {
	return sha256.Sum256([]byte(delegationTokenPrefix + delegatee + ":" + cond.String()))
}

// DelegationCredential is a delegator's signed grant. The JSON shape matches
// what remote signers return for the delegate method.
type DelegationCredential struct {
	Delegator  string     `json:"from"`
	Conditions Conditions `json:"cond"`
	Signature  string     `json:"sig"`
}

// SignDelegation signs a credential for delegatee with the delegator's hex
// secret key.
func SignDelegation(secretKey, delegatee string, cond Conditions) (DelegationCredential, error) {
	if !ValidSecretKey(secretKey) {
		return DelegationCredential{}, ErrInvalidKey
	}
	if !ValidPublicKey(delegatee) {
		return DelegationCredential{}, fmt.Errorf("%w: delegatee", ErrInvalidKey)
	}

	skb, _ := hex.DecodeString(secretKey)
	priv, pub := btcec.PrivKeyFromBytes(skb)

	token := DelegationToken(delegatee, cond)
	sig, err := schnorr.Sign(priv, token[:])
	if err != nil {
		return DelegationCredential{}, err
	}

	return DelegationCredential{
		Delegator:  hex.EncodeToString(schnorr.SerializePubKey(pub)),
		Conditions: cond,
		Signature:  hex.EncodeToString(sig.Serialize()),
	}, nil
}

// Verify checks the signature for delegatee. It does not look at time.
func (c DelegationCredential) Verify(delegatee string) error {
	pkb, err := hex.DecodeString(c.Delegator)
	if err != nil || len(pkb) != 32 {
		return fmt.Errorf("%w: delegator", ErrInvalidKey)
	}
	pub, err := schnorr.ParsePubKey(pkb)
	if err != nil {
		return fmt.Errorf("%w: delegator: %v", ErrInvalidKey, err)
	}

	sigb, err := hex.DecodeString(c.Signature)
	if err != nil || len(sigb) != schnorr.SignatureSize {
		return fmt.Errorf("%w: malformed", ErrInvalidSignature)
	}
	sig, err := schnorr.ParseSignature(sigb)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	token := DelegationToken(delegatee, c.Conditions)
	if !sig.Verify(token[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}

// Expired reports whether the created_at< bound has passed at t.
func (c DelegationCredential) Expired(t time.Time) bool {
	notAfter, ok := c.Conditions.NotAfter()
	return ok && t.Unix() >= notAfter.Unix()
}

func (c DelegationCredential) Tag() DelegationTag {
	return DelegationTag{
		Delegator:  c.Delegator,
		Conditions: c.Conditions.String(),
		Signature:  c.Signature,
	}
}

// DelegationTag is the event annotation derived from a credential.
type DelegationTag struct {
	Delegator  string `json:"delegator"`
	Conditions string `json:"conditions"`
	Signature  string `json:"sig"`
}

func (t DelegationTag) Tag() nostr.Tag {
	return nostr.Tag{DelegationTagName, t.Delegator, t.Conditions, t.Signature}
}

// VerifyEventDelegation checks an event's delegation tag: the signature
// covers the event author and the event's kind and created_at satisfy the
// conditions. Events without a delegation tag return the delegator "".
func VerifyEventDelegation(ev *nostr.Event) (string, error) {
	tag := ev.Tags.GetFirst([]string{DelegationTagName, ""})
	if tag == nil {
		return "", nil
	}
	if len(*tag) < 4 {
		return "", fmt.Errorf("%w: short delegation tag", ErrInvalidConditions)
	}

	cond, err := ParseConditions((*tag)[2])
	if err != nil {
		return "", err
	}
	cred := DelegationCredential{
		Delegator:  (*tag)[1],
		Conditions: cond,
		Signature:  (*tag)[3],
	}
	if err := cred.Verify(ev.PubKey); err != nil {
		return "", err
	}
	if !cond.Allows(ev.Kind, ev.CreatedAt.Time()) {
		return "", fmt.Errorf("%w: event outside delegation bounds", ErrInvalidConditions)
	}
	return cred.Delegator, nil
}
