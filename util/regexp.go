package util

import (
	"encoding/json"
	"regexp"
)

// Regexp is a regular expression that is compiled while the config is
// decoded. A zero Regexp means the setting was left unset.
type Regexp struct {
	Value *regexp.Regexp
}

func (r Regexp) String() string {
	if r.Value == nil {
		return ""
	}
	return r.Value.String()
}

func (r *Regexp) Decode(value string) error {
	var err error
	r.Value, err = regexp.Compile(value)
	return err
}

func (r Regexp) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r Regexp) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

func (r *Regexp) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var value string
	err := unmarshal(&value)
	if err != nil {
		return err
	}
	if value == "" {
		r.Value = nil
		return nil
	}
	return r.Decode(value)
}
