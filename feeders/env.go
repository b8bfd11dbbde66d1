// Package feeders provides the configuration feeders stepdiag loads its
// settings through: structured config files (YAML, TOML, JSON) and prefixed
// environment variables.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// PrefixEnvFeeder reads environment variables named PREFIX_<TAG> for every
// struct field carrying an env tag, recursing into nested structs. Slice
// fields accept comma-separated values.
type PrefixEnvFeeder struct {
	Prefix string
}

// NewPrefixEnvFeeder creates a PrefixEnvFeeder for the given variable prefix.
func NewPrefixEnvFeeder(prefix string) PrefixEnvFeeder {
	return PrefixEnvFeeder{Prefix: strings.ToUpper(prefix)}
}

// Feed populates the provided pointer-to-struct from the environment.
func (f PrefixEnvFeeder) Feed(structure interface{}) error {
	if f.Prefix == "" {
		return ErrEnvEmptyPrefix
	}
	value := reflect.ValueOf(structure)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return wrapEnvStructureError(structure)
	}
	return feedStructEnv(value.Elem(), f.Prefix, os.LookupEnv)
}

// envLookup resolves a fully-prefixed variable name to its value. Process
// environment and .env files share the struct walk through it.
type envLookup func(name string) (string, bool)

func feedStructEnv(rv reflect.Value, prefix string, lookup envLookup) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if field.Kind() == reflect.Struct {
			if err := feedStructEnv(field, prefix, lookup); err != nil {
				return err
			}
			continue
		}

		tag, ok := fieldType.Tag.Lookup("env")
		if !ok {
			continue
		}
		raw, ok := lookup(prefix + "_" + strings.ToUpper(tag))
		if !ok || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return ErrEnvFieldNotSettable
	}
	if field.Kind() == reflect.Slice {
		return setSliceField(field, raw)
	}
	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted))
	return nil
}

func setSliceField(field reflect.Value, raw string) error {
	parts := strings.Split(raw, ",")
	slice := reflect.MakeSlice(field.Type(), 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		converted, err := cast.FromType(part, field.Type().Elem())
		if err != nil {
			return fmt.Errorf("cannot convert element to type %v: %w", field.Type().Elem(), err)
		}
		slice = reflect.Append(slice, reflect.ValueOf(converted))
	}
	field.Set(slice)
	return nil
}
