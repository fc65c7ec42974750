package throttler

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Factory builds a Throttler from a loosely-typed options map.
type Factory func(options map[string]interface{}) (Throttler, error)

var factories = map[string]Factory{}

func normalizeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register installs a factory under name. Empty names and nil factories are ignored.
func Register(name string, f Factory) {
	key := normalizeKey(name)
	if key == "" || f == nil {
		return
	}
	factories[key] = f
}

// Create builds the throttler registered under name.
func Create(name string, options map[string]interface{}) (Throttler, error) {
	f, ok := factories[normalizeKey(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownThrottler, name)
	}
	if options == nil {
		options = map[string]interface{}{}
	}
	return f(options)
}

func decode(options map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}

func init() {
	timeFactory := func(options map[string]interface{}) (Throttler, error) {
		t := &Time{StrideSize: -1, Delay: -1}
		if err := decode(options, t); err != nil {
			return nil, fmt.Errorf("time throttler: %w", err)
		}
		t.applyDefaults()
		return t, nil
	}
	Register("time", timeFactory)
	Register("time_throttler", timeFactory)

	Register("none", func(options map[string]interface{}) (Throttler, error) {
		n := &None{}
		if err := decode(options, n); err != nil {
			return nil, fmt.Errorf("none throttler: %w", err)
		}
		return n, nil
	})
}
