package nostrconnect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type ConditionType string

const (
	CreatedAfter  ConditionType = "created_at>"
	CreatedBefore ConditionType = "created_at<"
	KindIs        ConditionType = "kind="
)

type Condition struct {
	Type  ConditionType
	Value int64
}

func (c Condition) String() string {
	return string(c.Type) + strconv.FormatInt(c.Value, 10)
}

// Conditions is an ordered delegation condition list. Its String form is the
// exact text covered by the delegation signature, so order matters.
type Conditions []Condition

// NewConditions builds the list in the order after, before, kinds. Kinds are
// deduplicated and sorted.
func NewConditions(notBefore, notAfter *time.Time, kinds []int) Conditions {
	var conds Conditions
	if notBefore != nil {
		conds = append(conds, Condition{Type: CreatedAfter, Value: notBefore.Unix()})
	}
	if notAfter != nil {
		conds = append(conds, Condition{Type: CreatedBefore, Value: notAfter.Unix()})
	}

	uniq := make([]int, 0, len(kinds))
	seen := make(map[int]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, k)
	}
	sort.Ints(uniq)
	for _, k := range uniq {
		conds = append(conds, Condition{Type: KindIs, Value: int64(k)})
	}
	return conds
}

func ParseConditions(s string) (Conditions, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "&")
	conds := make(Conditions, 0, len(parts))
	for _, part := range parts {
		var typ ConditionType
		switch {
		case strings.HasPrefix(part, string(CreatedAfter)):
			typ = CreatedAfter
		case strings.HasPrefix(part, string(CreatedBefore)):
			typ = CreatedBefore
		case strings.HasPrefix(part, string(KindIs)):
			typ = KindIs
		default:
			return nil, fmt.Errorf("%w: unknown condition %q", ErrInvalidConditions, part)
		}

		raw := strings.TrimPrefix(part, string(typ))
		if !canonicalUint(raw) {
			return nil, fmt.Errorf("%w: bad value in %q", ErrInvalidConditions, part)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
		}
		conds = append(conds, Condition{Type: typ, Value: v})
	}
	return conds, nil
}

// canonicalUint accepts digits only, without leading zeros, so that parsing
// and printing give back the signed bytes.
func canonicalUint(s string) bool {
	if s == "" {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (c Conditions) String() string {
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.String()
	}
	return strings.Join(parts, "&")
}

func (c Conditions) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Conditions) UnmarshalText(text []byte) error {
	parsed, err := ParseConditions(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// NotBefore returns the tightest created_at> bound.
func (c Conditions) NotBefore() (time.Time, bool) {
	var (
		v  int64
		ok bool
	)
	for _, cond := range c {
		if cond.Type == CreatedAfter && (!ok || cond.Value > v) {
			v, ok = cond.Value, true
		}
	}
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(v, 0), true
}

// NotAfter returns the tightest created_at< bound.
func (c Conditions) NotAfter() (time.Time, bool) {
	var (
		v  int64
		ok bool
	)
	for _, cond := range c {
		if cond.Type == CreatedBefore && (!ok || cond.Value < v) {
			v, ok = cond.Value, true
		}
	}
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(v, 0), true
}

func (c Conditions) Kinds() []int {
	var kinds []int
	for _, cond := range c {
		if cond.Type == KindIs {
			kinds = append(kinds, int(cond.Value))
		}
	}
	return kinds
}

// ValidAt reports whether an event created at t satisfies the time bounds.
// Both bounds are exclusive.
func (c Conditions) ValidAt(t time.Time) bool {
	ts := t.Unix()
	for _, cond := range c {
		switch cond.Type {
		case CreatedAfter:
			if ts <= cond.Value {
				return false
			}
		case CreatedBefore:
			if ts >= cond.Value {
				return false
			}
		}
	}
	return true
}

// AllowsKind reports whether kind is permitted. No kind condition means any.
func (c Conditions) AllowsKind(kind int) bool {
	restricted := false
	for _, cond := range c {
		if cond.Type != KindIs {
			continue
		}
		restricted = true
		if int(cond.Value) == kind {
			return true
		}
	}
	return !restricted
}

func (c Conditions) Allows(kind int, createdAt time.Time) bool {
	return c.AllowsKind(kind) && c.ValidAt(createdAt)
}
