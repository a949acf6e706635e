package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadTOML loads configuration from a TOML file.
// Keys not present in target are reported as an error so typos do not go unnoticed.
func LoadTOML(path string, target interface{}) error {
	// #nosec G304 -- path comes from the operator (flag or env)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read TOML file %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown TOML keys in %s: %v", path, undecoded)
	}

	return nil
}
