package scope

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
)

// ErrMalformedScope is returned when dynamic input cannot be read as scopes.
var ErrMalformedScope = apperrors.New(apperrors.CodeScopeMalformed, "malformed scope")

// Like is anything that can be read as a set of scopes: a space separated
// String, a List of tokens, or another Scopes.
type Like interface {
	tokens() []string
}

// String is a space separated scope string such as "repo read:user".
type String string

func (s String) tokens() []string {
	return strings.Fields(string(s))
}

// List is a slice of scope tokens. Elements may themselves hold several
// space separated scopes.
type List []string

func (l List) tokens() []string {
	out := make([]string, 0, len(l))
	for _, value := range l {
		out = append(out, strings.Fields(value)...)
	}
	return out
}

// Scopes is a normalized, sorted set of scope tokens.
type Scopes struct {
	values []string
}

func (s Scopes) tokens() []string {
	return s.values
}

// New returns the set of the given tokens.
func New(values ...string) Scopes {
	return Scopes{}.Extend(List(values))
}

// Parse returns the set of a space separated scope string.
func Parse(value string) Scopes {
	return Scopes{}.Extend(String(value))
}

// Extend returns the union of s and other. s is left unchanged.
func (s Scopes) Extend(other Like) Scopes {
	if other == nil {
		return s
	}
	incoming := other.tokens()
	if len(incoming) == 0 {
		return s
	}
	merged := make([]string, 0, len(s.values)+len(incoming))
	merged = append(merged, s.values...)
	for _, token := range incoming {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		merged = append(merged, token)
	}
	slices.Sort(merged)
	return Scopes{values: slices.Compact(merged)}
}

// Has reports whether every scope in other is present in s.
func (s Scopes) Has(other Like) bool {
	if other == nil {
		return true
	}
	for _, token := range other.tokens() {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if _, found := slices.BinarySearch(s.values, token); !found {
			return false
		}
	}
	return true
}

// Set returns the scopes as a freshly allocated set.
func (s Scopes) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(s.values))
	for _, value := range s.values {
		out[value] = struct{}{}
	}
	return out
}

// Slice returns a sorted copy of the scope tokens.
func (s Scopes) Slice() []string {
	return slices.Clone(s.values)
}

// Len returns the number of scopes.
func (s Scopes) Len() int {
	return len(s.values)
}

// IsEmpty reports whether s holds no scopes.
func (s Scopes) IsEmpty() bool {
	return len(s.values) == 0
}

// Equal reports whether s and other hold the same scopes.
func (s Scopes) Equal(other Scopes) bool {
	return slices.Equal(s.values, other.values)
}

// String returns the canonical sorted, space joined form.
func (s Scopes) String() string {
	return strings.Join(s.values, " ")
}

// Map returns a new set with fn applied to each scope. Empty results are dropped.
func (s Scopes) Map(fn func(string) string) Scopes {
	if fn == nil {
		return s
	}
	mapped := make([]string, 0, len(s.values))
	for _, value := range s.values {
		mapped = append(mapped, fn(value))
	}
	return New(mapped...)
}

// FromAny reads scopes from dynamically typed input such as decoded JSON.
// A nil value is the empty set. Anything that is not a string, a list of
// strings or a scope value fails with ErrMalformedScope.
func FromAny(value any) (Scopes, error) {
	switch v := value.(type) {
	case nil:
		return Scopes{}, nil
	case Scopes:
		return v, nil
	case String:
		return Scopes{}.Extend(v), nil
	case List:
		return Scopes{}.Extend(v), nil
	case string:
		return Parse(v), nil
	case []string:
		return New(v...), nil
	case []any:
		values := make([]string, 0, len(v))
		for i, item := range v {
			text, ok := item.(string)
			if !ok {
				return Scopes{}, malformed(fmt.Sprintf("element %d is %T", i, item))
			}
			values = append(values, text)
		}
		return New(values...), nil
	default:
		return Scopes{}, malformed(fmt.Sprintf("unsupported type %T", value))
	}
}

func malformed(reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeScopeMalformed,
		"malformed scope: "+reason,
		map[string]string{"Reason": reason},
	)
}

// MarshalJSON encodes the scopes as a JSON array of strings.
func (s Scopes) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON accepts either a space separated string or an array of strings.
func (s *Scopes) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return malformed(err.Error())
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
