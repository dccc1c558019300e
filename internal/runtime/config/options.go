package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Options is the read-only pipeline configuration handed to processors at
// setup and at bundle boundaries.
type Options map[string]string

// Get returns the raw value of key.
func (o Options) Get(key string) (string, bool) {
	v, ok := o[key]
	return v, ok
}

// Keys returns the option names in sorted order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (o Options) Clone() Options {
	cloned := make(Options, len(o))
	for k, v := range o {
		cloned[k] = v
	}
	return cloned
}

// Int parses key as an integer, returning def when it is unset.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

// Bool parses key as a boolean, returning def when it is unset.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("option %s: %w", key, err)
	}
	return b, nil
}

// Duration parses key with time.ParseDuration, returning def when it is unset.
func (o Options) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}
