// Package environment provides helpers for loading configuration from environment variables.
//
// All helpers follow a consistent pattern: they read an environment variable and
// return either the value or a default. Required variables return an error rather
// than calling os.Exit, keeping business logic out of library code.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of the named environment variable and a boolean
// indicating whether it was set (even if set to the empty string).
func String(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok
}

// StringOr returns the value of the named environment variable, or defaultValue
// if the variable is unset or empty.
func StringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

// RequiredString returns the value of the named environment variable or an error
// if it is unset or empty.
func RequiredString(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr parses the named environment variable as a boolean. Recognized values
// are the same as strconv.ParseBool ("1", "t", "true", "0", "f", "false", etc.).
// Returns defaultValue if the variable is unset, empty, or cannot be parsed.
func BoolOr(name string, defaultValue bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses the named environment variable as a decimal integer. Returns
// defaultValue if the variable is unset, empty, or cannot be parsed.
func IntOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// DurationOr parses the named environment variable as a time.Duration (e.g.
// "30s", "5m", "1h"). Returns defaultValue if the variable is unset, empty,
// or cannot be parsed.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr parses the named environment variable as a comma-separated list
// of strings, trimming whitespace from each element. Returns defaultValue if the
// variable is unset or empty.
func StringSliceOr(name string, defaultValue []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// Int64SliceOr parses the named environment variable as a comma-separated list
// of signed 64-bit integers (e.g. Telegram user IDs). Elements that fail to
// parse return an error rather than being silently dropped: a typo in an
// allowlist must not shrink the allowlist. Returns defaultValue if the
// variable is unset or empty.
func Int64SliceOr(name string, defaultValue []int64) ([]int64, error) {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue, nil
	}
	parts := strings.Split(v, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("environment variable %q: invalid integer %q", name, t)
		}
		result = append(result, n)
	}
	if len(result) == 0 {
		return defaultValue, nil
	}
	return result, nil
}

// PairsOr parses the named environment variable as a comma-separated list of
// id:value pairs (e.g. "123456789:alice,987654321:bob") into an int64-keyed
// map. Malformed entries return an error. Returns defaultValue if the
// variable is unset or empty.
func PairsOr(name string, defaultValue map[int64]string) (map[int64]string, error) {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue, nil
	}
	result := make(map[int64]string)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idStr, val, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("environment variable %q: entry %q is not id:value", name, entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("environment variable %q: invalid id in entry %q", name, entry)
		}
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, fmt.Errorf("environment variable %q: empty value in entry %q", name, entry)
		}
		result[id] = val
	}
	if len(result) == 0 {
		return defaultValue, nil
	}
	return result, nil
}
