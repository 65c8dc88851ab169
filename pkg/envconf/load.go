// Package envconf fills `env`-tagged struct fields from the environment,
// an optional config file and `default` tags, in that order of precedence.
//
//	type Config struct {
//		Port    uint16        `env:"APP_PORT" default:"8080"`
//		Timeout time.Duration `env:"APP_TIMEOUT" default:"5s"`
//		DB      config.PostgresConfig
//	}
//
// Untagged struct fields are walked recursively. A tagged field with no
// value from any source and no default is an error.
package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
)

type options struct {
	configFile string
}

type Option func(*options)

// WithConfigFile layers a YAML, TOML or JSON file under the environment.
// Keys are the env names, case-insensitive. An empty path is ignored.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

func Load(dst any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)

		err := v.ReadInConfig()
		if err != nil {
			return fmt.Errorf("read config file %q: %w", o.configFile, err)
		}
	}

	return load(v, dst)
}

func load(v *viper.Viper, dst any) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("destination must be a non-nil pointer to a struct")
	}

	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return errors.New("destination must point to a struct")
	}

	t := rv.Type()
	for i := range rv.NumField() {
		sf := t.Field(i)
		fv := rv.Field(i)

		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("env")

		if tag == "-" || tag == "" {
			err := loadNested(v, sf, fv)
			if err != nil {
				return err
			}

			continue
		}

		key := strings.ToLower(tag)

		err := v.BindEnv(key, tag)
		if err != nil {
			return fmt.Errorf("bind %q: %w", tag, err)
		}

		def, hasDefault := sf.Tag.Lookup("default")
		if hasDefault {
			v.SetDefault(key, def)
		}

		if !v.IsSet(key) {
			return fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, tag, sf.Name)
		}

		err = setValue(fv, v.Get(key))
		if err != nil {
			return fmt.Errorf("parse %q for field %q: %w", tag, sf.Name, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func loadNested(v *viper.Viper, sf reflect.StructField, fv reflect.Value) error {
	switch {
	case fv.Kind() == reflect.Struct && sf.Type != durationType:
		err := load(v, fv.Addr().Interface())
		if err != nil {
			return fmt.Errorf("load recursively %q: %w", sf.Name, err)
		}

	case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}

		err := load(v, fv.Interface())
		if err != nil {
			return fmt.Errorf("load recursively %q: %w", sf.Name, err)
		}
	}

	return nil
}

//nolint:cyclop
func setValue(fv reflect.Value, raw any) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			s, err := cast.ToStringE(raw)
			if err != nil {
				return fmt.Errorf("to string: %w", err)
			}

			err = u.UnmarshalText([]byte(s))
			if err != nil {
				return fmt.Errorf("unmarshal text: %w", err)
			}

			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("parse string: %w", err)
		}

		fv.SetString(s)

	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		fv.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := cast.ToDurationE(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := cast.ToInt64E(raw)
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		if fv.OverflowInt(i) {
			return fmt.Errorf("parse int: %d overflows %s", i, fv.Type())
		}

		fv.SetInt(i)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := cast.ToUint64E(raw)
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		if fv.OverflowUint(u) {
			return fmt.Errorf("parse uint: %d overflows %s", u, fv.Type())
		}

		fv.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}

		fv.SetFloat(f)

	case reflect.Pointer:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}

		err := setValue(fv.Elem(), raw)
		if err != nil {
			return fmt.Errorf("parse pointer: %w", err)
		}

	default:
		return fmt.Errorf("unsupported type %s: %w", fv.Type(), ErrUnsupportedType)
	}

	return nil
}
