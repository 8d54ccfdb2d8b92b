package oauth

// Secret wraps a sensitive string such as a client secret so that it cannot
// leak through fmt, logging, JSON or YAML output.
//
//	s := oauth.NewSecret("value")
//	fmt.Println(s)   // [REDACTED]
//	raw := s.Value() // "value"
type Secret struct {
	value string
}

const redacted = "[REDACTED]"

// NewSecret creates a new Secret wrapping the given value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the actual secret. Never log the result.
func (s Secret) Value() string {
	return s.value
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "oauth.Secret{" + redacted + "}"
}

// IsEmpty returns true if the secret value is empty.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
