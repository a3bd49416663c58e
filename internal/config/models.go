package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type modelRegistryFile struct {
	Models []ModelConfig `yaml:"models"`
}

// LoadModelRegistry reads the list of available models from a YAML file,
// the same way the teacher's config.LoadConfig reads its YAML config,
// but scoped to just the model registry block.
func LoadModelRegistry(path string) ([]ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry %s: %w", path, err)
	}
	var f modelRegistryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal model registry %s: %w", path, err)
	}
	for i := range f.Models {
		if f.Models[i].MaxConcurrency <= 0 {
			f.Models[i].MaxConcurrency = 4
		}
		if f.Models[i].MaxInputTokens <= 0 {
			f.Models[i].MaxInputTokens = 8192
		}
	}
	return f.Models, nil
}
