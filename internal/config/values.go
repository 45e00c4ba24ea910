package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// ListValues returns the config as a flat dot-separated key map,
// masking secrets when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads the config file at path and returns the value for the
// given dot-separated key. Secrets are masked.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, true)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return val, nil
}

// SetValue updates one dot-separated key in the config file at path,
// preserving everything else. Values that parse as bool, int or float
// are stored as such; everything else is stored as a string.
func SetValue(path, key, value string) error {
	raw := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	flat := Flatten(raw)
	flat[key] = coerce(value)
	nested := Unflatten(flat)

	// Round-trip through Config to reject keys the schema does not know.
	data, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid config value: %w", err)
	}

	out, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return err
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

func coerce(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
