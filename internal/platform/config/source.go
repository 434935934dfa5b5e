package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "STOREFRONT_"

// source resolves STOREFRONT_* keys across layers, first hit wins. Malformed numbers and durations
// fall back to the default.
type source struct {
	layers []func(string) (string, bool)
}

func newSource(options loaderOptions, dotEnv map[string]string) source {
	var s source
	if len(options.envMap) > 0 {
		s.layers = append(s.layers, mapLayer(options.envMap))
	}
	if options.useSystemEnv {
		s.layers = append(s.layers, os.LookupEnv)
	}
	if len(dotEnv) > 0 {
		s.layers = append(s.layers, mapLayer(dotEnv))
	}
	return s
}

func mapLayer(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func (s source) lookup(name string) (string, bool) {
	key := envPrefix + name
	for _, layer := range s.layers {
		if value, ok := layer(key); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}
	return "", false
}

func (s source) str(name, fallback string) string {
	if value, ok := s.lookup(name); ok {
		return value
	}
	return fallback
}

// enum lowercases the value; backend selectors are case-insensitive.
func (s source) enum(name, fallback string) string {
	return strings.ToLower(s.str(name, fallback))
}

func (s source) duration(name string, fallback time.Duration) time.Duration {
	if value, ok := s.lookup(name); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (s source) days(name string, fallback int) time.Duration {
	return time.Duration(s.integer(name, fallback)) * 24 * time.Hour
}

func (s source) integer(name string, fallback int) int {
	if value, ok := s.lookup(name); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) int64(name string, fallback int64) int64 {
	if value, ok := s.lookup(name); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func (s source) boolean(name string, fallback bool) bool {
	if value, ok := s.lookup(name); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func (s source) list(name string) []string {
	value, ok := s.lookup(name)
	if !ok {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
