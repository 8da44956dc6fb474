package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ToMap converts a Config into a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return nested, nil
}

// ListValues returns the config as a flat dot-keyed map, masking secret
// values when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	nested, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value at the dot-separated key. A missing config file
// is created with defaults first.
func GetValue(path, key string) (any, error) {
	flat, err := loadFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates the value at the dot-separated key and rewrites the config
// file atomically. Values that parse as JSON numbers or booleans are stored
// as such; everything else is a string. Keys outside the Config struct are
// preserved as-is.
func SetValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	flat := Flatten(nested)
	flat[key] = coerce(value)

	out, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func loadFlat(path string) (map[string]any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Create the file with defaults, matching Load.
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(nested), nil
}

// coerce interprets a CLI-supplied string as a bool or number when it parses
// as one, matching the types JSON round-trips produce.
func coerce(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err == nil {
		return f
	}
	return s
}
