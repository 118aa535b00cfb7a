package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration decoded from the environment. Besides the
// time.ParseDuration forms it accepts a "d" suffix for days and a bare
// integer for seconds, the unit token lifetimes are usually quoted in.
type Duration struct {
	time.Duration
}

// EnvDecode implements envconfig.Decoder.
func (d *Duration) EnvDecode(_ context.Context, v string) error {
	parsed, err := parseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid days value %q: %w", v, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return parsed, nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	return d.EnvDecode(context.Background(), string(text))
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// MaxAge returns the duration as whole seconds, the unit cookie Max-Age uses.
func (d Duration) MaxAge() int {
	return int(d.Duration / time.Second)
}
