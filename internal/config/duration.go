package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// durations parses many duration fields and collects every error, so one
// validation pass reports all bad values at once.
type durations struct {
	errs []error
}

// get parses raw at path. Empty or zero yields def.
func (d *durations) get(path, raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err))
		return def
	}
	if v < 0 {
		d.errs = append(d.errs, fmt.Errorf("%s: duration must be >= 0, got %s", path, s))
		return def
	}
	if v == 0 {
		return def
	}
	return v
}

func (d *durations) err() error { return errors.Join(d.errs...) }
