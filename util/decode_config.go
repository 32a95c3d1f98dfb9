package util

import (
	"fmt"
	"reflect"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

type stringUnmarshaler interface {
	Decode(value string) error
}

var stringUnmarshalerType = reflect.TypeOf((*stringUnmarshaler)(nil)).Elem()

// DecodeConfig unpacks the map config of a store into output, which must be
// a pointer to a struct with yaml tags, and then applies environment
// variables prefixed with name.
//
// Keys that output has no field for are an error, as they are in the main
// config file. A nil input leaves output untouched apart from the
// environment.
func DecodeConfig(name string, input interface{}, output interface{}) error {
	configDecoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			textUnmarshalerDecode,
		),
		ErrorUnused: true,
		Result:      output,
		TagName:     "yaml",
	})
	if err != nil {
		return err
	}
	if input != nil {
		err = configDecoder.Decode(input)
		if err != nil {
			return errors.Wrapf(err, "decoding config for %s", name)
		}
	}
	err = envconfig.Process(name, output)
	if err != nil {
		return errors.Wrapf(err, "reading environment for %s", name)
	}
	return nil
}

// A mapstructure decode hook for fields such as StringSecret and Regexp
// that parse themselves from a string.
func textUnmarshalerDecode(
	inputType reflect.Type, outputType reflect.Type, data interface{},
) (interface{}, error) {
	if !reflect.PtrTo(outputType).Implements(stringUnmarshalerType) {
		return data, nil
	}
	value, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("invalid type %v", inputType)
	}
	parsedValue, ok := reflect.New(outputType).Interface().(stringUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("invalid output type %v", outputType)
	}
	err := parsedValue.Decode(value)
	if err != nil {
		return nil, err
	}
	return parsedValue, nil
}
