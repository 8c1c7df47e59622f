package botconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File represents the top-level YAML structure.
type File struct {
	Bots []BotConfig `yaml:"bots"`
}

// LoadFile reads bot configurations from a YAML file and applies defaults.
func LoadFile(path string) ([]BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes bot configurations from YAML bytes.
func Parse(data []byte) ([]BotConfig, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode bots: %w", err)
	}

	out := make([]BotConfig, 0, len(file.Bots))
	for _, b := range file.Bots {
		out = append(out, b.WithDefaults())
	}
	return out, nil
}

// RegisterAll registers every configuration, stopping at the first failure.
func (r *Registry) RegisterAll(cfgs []BotConfig) error {
	for _, cfg := range cfgs {
		if err := r.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}
