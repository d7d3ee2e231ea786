package nostrconnect

import (
	"encoding/json"
	"fmt"
)

// KindNostrConnect is the event kind carrying encrypted signer messages.
const KindNostrConnect = 24133

const (
	MethodConnect      = "connect"
	MethodGetPublicKey = "get_public_key"
	MethodDelegate     = "delegate"
	MethodSignEvent    = "sign_event"
)

type Request struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Message is either a Request or a Response; they are told apart by Method.
type Message struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params []string        `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (m Message) IsRequest() bool {
	return m.Method != ""
}

func (m Message) Request() Request {
	return Request{ID: m.ID, Method: m.Method, Params: m.Params}
}

func (m Message) Response() Response {
	return Response{ID: m.ID, Result: m.Result, Error: m.Error}
}

// NewResult builds a response whose result is v encoded as JSON.
func NewResult(id string, v any) (Response, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Response{}, err
	}
	return Response{ID: id, Result: raw}, nil
}

// Decode unmarshals the result into v. Signers differ on whether structured
// results are sent as objects or as JSON-encoded strings; both are accepted.
func (r Response) Decode(v any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("empty result")
	}
	var inner string
	if err := json.Unmarshal(r.Result, &inner); err == nil {
		if s, ok := v.(*string); ok {
			*s = inner
			return nil
		}
		return json.Unmarshal([]byte(inner), v)
	}
	return json.Unmarshal(r.Result, v)
}

// DelegationResult is the delegate method's result.
type DelegationResult struct {
	From string `json:"from"`
	To   string `json:"to"`
	Cond string `json:"cond"`
	Sig  string `json:"sig"`
}

func (d DelegationResult) Credential() (DelegationCredential, error) {
	cond, err := ParseConditions(d.Cond)
	if err != nil {
		return DelegationCredential{}, err
	}
	return DelegationCredential{
		Delegator:  d.From,
		Conditions: cond,
		Signature:  d.Sig,
	}, nil
}
