package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedAsset declares one market asset in the universe seed file
type SeedAsset struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	QuoteCurrency string `yaml:"quote_currency"`
	ExternalID    string `yaml:"external_id"`
	Enabled       *bool  `yaml:"enabled"` // nil means enabled
}

// IsEnabled returns the effective enabled flag
func (a SeedAsset) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// SeedAgent declares one trading agent in the universe seed file
type SeedAgent struct {
	Name          string `yaml:"name"`
	Strategy      string `yaml:"strategy"`
	Instructions  string `yaml:"instructions"`
	ModelProvider string `yaml:"model_provider"`
	DeploymentKey string `yaml:"deployment_key"`
	Active        *bool  `yaml:"active"` // nil means active
}

// IsActive returns the effective active flag
func (a SeedAgent) IsActive() bool {
	return a.Active == nil || *a.Active
}

// Seed is the parsed universe seed file
type Seed struct {
	Assets []SeedAsset `yaml:"assets"`
	Agents []SeedAgent `yaml:"agents"`
}

// LoadSeed parses the YAML seed file at path.
// Returns an empty seed when path is empty.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, a := range seed.Assets {
		if a.Symbol == "" {
			return nil, fmt.Errorf("seed asset %d is missing a symbol", i)
		}
	}
	for i, a := range seed.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("seed agent %d is missing a name", i)
		}
	}

	return &seed, nil
}
