// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go-simpler.org/env"
)

// lookupFunc adapts a LookupEnv style function to an env.Source.
type lookupFunc func(string) (string, bool)

func (f lookupFunc) LookupEnv(key string) (string, bool) {
	return f(key)
}

// applyEnv overrides settings from the env tags on the Settings fields.
// Fields whose variable is unset keep their current value.
func (s *Settings) applyEnv(lookupEnv func(string) (string, bool)) error {
	if err := env.Load(s, &env.Options{
		Source:   lookupFunc(lookupEnv),
		SliceSep: ",",
	}); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	for _, list := range []*[]string{
		&s.Analysis.SupportedPlatforms,
		&s.Security.CORSOrigins,
		&s.ImageProxy.AllowList,
	} {
		*list = cleanList(*list)
	}
	return nil
}

// Duration is a time.Duration that also accepts a plain number of seconds
// when read from the environment or a config file.
type Duration time.Duration

// UnmarshalText fulfills the encoding.TextUnmarshaler interface.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts both quoted and numeric yaml scalars.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(fmt.Sprint(v)))
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration accepts a Go duration ("1m30s") or a plain number of
// seconds ("90", "1.5").
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// cleanList trims list entries and drops empty ones.
func cleanList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
