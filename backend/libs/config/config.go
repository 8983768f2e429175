package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding the optional YAML config file path.
const PathEnv = "CONFIG_FILE"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills target from the YAML file named by CONFIG_FILE (if set)
// and then applies environment overrides. Keys come from `env:"KEY"` tags or,
// for untagged fields, PARENT_CHILD names built from the struct path.
func LoadConfig(target any) error {
	return LoadConfigFrom(os.Getenv(PathEnv), target)
}

// LoadConfigFrom is LoadConfig with an explicit file path; an empty path skips the file.
func LoadConfigFrom(path string, target any) error {
	return load(path, target, os.LookupEnv)
}

func load(path string, target any, lookup func(string) (string, bool)) error {
	root, err := structPointer(target)
	if err != nil {
		return err
	}

	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, target); err != nil {
			return err
		}
	}

	b := binder{lookup: lookup}
	b.bind(root, "")
	return errors.Join(b.errs...)
}

func structPointer(target any) (reflect.Value, error) {
	if target == nil {
		return reflect.Value{}, errors.New("config: target is nil")
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("config: target must be a non-nil struct pointer, got %T", target)
	}
	return v.Elem(), nil
}

// decodeFile rejects keys that match no field so typos surface at startup.
func decodeFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

type binder struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (b *binder) bind(v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, meta := v.Field(i), t.Field(i)
		if !field.CanSet() {
			continue
		}

		tag := meta.Tag.Get("env")
		switch {
		case tag == "-":
			continue
		case meta.Anonymous:
			b.bind(field, prefix)
			continue
		}

		key := envKey(prefix, meta.Name)
		if tag != "" {
			key = envKey("", tag)
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			b.bind(field, key)
			continue
		}

		raw, ok := b.lookup(key)
		if !ok {
			continue
		}
		if err := set(field, strings.TrimSpace(raw)); err != nil {
			b.errs = append(b.errs, fmt.Errorf("config: %s=%q: %w", key, raw, err))
		}
	}
}

func envKey(prefix, name string) string {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func set(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(parsed)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		parsed, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(parsed)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		parsed, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(parsed)
	case reflect.Float32, reflect.Float64:
		parsed, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(parsed)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
