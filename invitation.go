package nostrconnect

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const InvitationScheme = "nostrconnect"

// Invitation is the connect string an app hands to a remote signer, usually
// as a QR code.
type Invitation struct {
	PublicKey string
	Relay     RelayURL
	Name      string
}

type invitationMetadata struct {
	Name string `json:"name"`
}

// String renders nostrconnect://<pubkey>?relay=..&metadata=... The output
// depends only on the three fields.
func (i Invitation) String() string {
	meta, _ := json.Marshal(invitationMetadata{Name: i.Name})
	return InvitationScheme + "://" + i.PublicKey +
		"?relay=" + url.QueryEscape(string(i.Relay)) +
		"&metadata=" + url.QueryEscape(string(meta))
}

func ParseInvitation(s string) (Invitation, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}
	if u.Scheme != InvitationScheme {
		return Invitation{}, fmt.Errorf("%w: scheme %q", ErrInvalidInvitation, u.Scheme)
	}
	if !ValidPublicKey(u.Host) {
		return Invitation{}, fmt.Errorf("%w: public key", ErrInvalidInvitation)
	}

	q := u.Query()
	relay, err := ParseRelayURL(q.Get("relay"))
	if err != nil {
		return Invitation{}, fmt.Errorf("%w: %v", ErrInvalidInvitation, err)
	}

	var meta invitationMetadata
	if raw := q.Get("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return Invitation{}, fmt.Errorf("%w: metadata: %v", ErrInvalidInvitation, err)
		}
	}

	return Invitation{
		PublicKey: u.Host,
		Relay:     relay,
		Name:      meta.Name,
	}, nil
}
