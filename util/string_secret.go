package util

import (
	"encoding/json"
	"flag"
)

var PrintSecrets = flag.Bool(
	"print-secrets", false, "Disables redacting config secrets")

const Redacted = "REDACTED"

type StringSecret struct {
	Value string
}

func (s StringSecret) String() string {
	if *PrintSecrets {
		return s.Value
	}
	if s.Value == "" {
		return ""
	}
	return Redacted
}

func (s *StringSecret) UnmarshalYAML(unmarshal func(interface{}) error) error {
	return unmarshal(&s.Value)
}

// MarshalJSON and MarshalYAML write the redacted form, so a config can be
// served back without leaking credentials.
func (s StringSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s StringSecret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Decode lets util.DecodeConfig and envconfig read a secret from a plain
// string.
func (s *StringSecret) Decode(value string) error {
	s.Value = value
	return nil
}
