package config

import (
	"fmt"
	"strings"
	"time"
)

// ConfigError reports an unusable run option. Option parsing happens before
// any row is read, so a bad value fails the run up front.
type ConfigError struct {
	Option string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid --%s value %q: %s", e.Option, e.Value, e.Reason)
}

// ParseDate parses a YYYY-MM-DD option value. An empty value defaults to
// today, matching the "backfill what changed today" default run.
func ParseDate(option, value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &ConfigError{Option: option, Value: value, Reason: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// ParsePairs parses a comma-separated list of key:value pairs, as used by
// the type-map and extra-meta options. Values may themselves contain colons
// (URLs); only the first colon splits.
func ParsePairs(option, value string) (map[string]string, error) {
	if value == "" {
		return nil, nil
	}
	pairs := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, ":")
		if !ok || k == "" {
			return nil, &ConfigError{Option: option, Value: part, Reason: "expected key:value"}
		}
		pairs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return pairs, nil
}

// ParseModelList parses a comma-separated list of model names.
func ParseModelList(value string) []string {
	return parseList(value)
}
