package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileLookup reads a flat YAML document of SQLAGENT_* keys, e.g.
//
//	SQLAGENT_STORE_DSN: sqlite://shop.db
//	SQLAGENT_AGENT_MAX_ATTEMPTS: 5
func FileLookup(path string) (LookupFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return parseYAMLLookup(raw)
}

func parseYAMLLookup(raw []byte) (LookupFunc, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	values := make(map[string]string, len(doc))
	for key, value := range doc {
		switch typed := value.(type) {
		case nil:
			values[key] = ""
		case map[string]any, []any:
			return nil, fmt.Errorf("config key %s must be a scalar", key)
		default:
			values[key] = fmt.Sprint(typed)
		}
	}
	return func(key string) (string, bool) {
		value, ok := values[strings.TrimSpace(key)]
		return value, ok
	}, nil
}

// ChainLookup returns the first hit across lookups, in order.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}
