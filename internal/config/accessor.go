package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Keys are dot paths over the JSON form of Config, e.g. "relay.signalVariant".

func toTree(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath returns the value at key: a leaf value or a whole section.
func GetByPath(cfg *Config, key string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	var cur any = tree
	for _, part := range strings.Split(key, ".") {
		section, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("key not found: %s", key)
		}
		if cur, ok = section[part]; !ok {
			return nil, fmt.Errorf("key not found: %s", key)
		}
	}
	return cur, nil
}

// SetByPath sets one leaf of cfg from its string form.
func SetByPath(cfg *Config, key, raw string) error {
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}
	if err := setLeaf(tree, key, raw); err != nil {
		return err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// SetInFile sets one leaf in the config file at path, creating the file
// from the defaults when it does not exist. The file is edited as written:
// ${VAR} references stay unexpanded and environment overrides are never
// persisted. The edited file must still load and validate.
func SetInFile(path, key, raw string) error {
	path = ExpandPath(path)

	tree, err := readTree(path)
	if err != nil {
		return err
	}
	if err := setLeaf(tree, key, raw); err != nil {
		return err
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	candidate := Defaults()
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), candidate); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := Validate(candidate); err != nil {
		return err
	}
	return writeConfigFile(path, data)
}

func readTree(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return toTree(Defaults())
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return tree, nil
}

// setLeaf writes raw into tree at key. Only keys that exist in the default
// config are accepted, and raw is converted to the type of the default value.
func setLeaf(tree map[string]any, key, raw string) error {
	known := ListPaths(Defaults())
	def, ok := known[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	val, err := convertLike(def, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	parts := strings.Split(key, ".")
	section := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := section[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			section[part] = next
		}
		section = next
	}
	section[parts[len(parts)-1]] = val
	return nil
}

// convertLike parses raw into the JSON type of like. A ${VAR} reference is
// kept verbatim for any type and resolved when the file is loaded.
func convertLike(like any, raw string) (any, error) {
	if strings.HasPrefix(raw, "${") {
		return raw, nil
	}
	switch like.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	case float64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// Sanitize returns a copy of cfg with credentials masked.
func Sanitize(cfg *Config) *Config {
	clone := *cfg
	clone.Telegram.Token = maskString(cfg.Telegram.Token)
	clone.Server.SecretToken = maskString(cfg.Server.SecretToken)
	if cfg.Dedup.RedisPassword != "" {
		clone.Dedup.RedisPassword = "***"
	}
	return &clone
}

// maskString keeps the first and last four characters of long secrets.
func maskString(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// ListPaths flattens cfg into leaf key → value.
func ListPaths(cfg *Config) map[string]any {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

// SortedPaths returns the keys of a ListPaths result in lexical order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
