package config

import (
	"encoding/json"
	"errors"
)

const redacted = "[REDACTED]"

// Secret holds a provider API key. Every formatting and marshaling path
// prints a placeholder; only Value returns the key.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return "config.Secret(" + redacted + ")" }

// Value returns the key itself.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a key is configured.
func (s Secret) IsSet() bool { return s != "" }

// MarshalText covers JSON and YAML output as well.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts the raw key, but refuses the placeholder so a
// dumped config cannot be loaded back with a bogus key.
func (s *Secret) UnmarshalText(text []byte) error {
	if string(text) == redacted {
		return errors.New("secret value is a redacted placeholder")
	}
	*s = Secret(text)
	return nil
}

// UnmarshalJSON applies the UnmarshalText rules to a JSON string.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(raw))
}
