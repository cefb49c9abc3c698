package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// FileLoader returns a Loader that reads a flat YAML map of secret names to
// values, as mounted by a secret manager. A missing file yields no secrets.
// A file readable by group or others still loads, with a warning.
func FileLoader(path string) Loader {
	return func() (map[string]string, error) {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return map[string]string{}, nil
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Mode().Perm()&0o077 != 0 {
			slog.Warn("secrets file is accessible by other users", "path", path, "mode", info.Mode().Perm().String())
		}

		data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		vals := map[string]string{}
		if err := yaml.Unmarshal(data, &vals); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return vals, nil
	}
}

// ChainLoader merges the results of several loaders; later loaders win.
func ChainLoader(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := map[string]string{}
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			maps.Copy(out, vals)
		}
		return out, nil
	}
}
