package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  - symbol: BTC
    name: Bitcoin
    external_id: bitcoin
  - symbol: DOT
    name: Polkadot
    external_id: polkadot
    enabled: false

agents:
  - name: momentum-bot
    strategy: momentum
    model_provider: mock
  - name: sleeper
    active: false
`), 0644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)

	require.Len(t, seed.Assets, 2)
	assert.True(t, seed.Assets[0].IsEnabled())
	assert.False(t, seed.Assets[1].IsEnabled())

	require.Len(t, seed.Agents, 2)
	assert.True(t, seed.Agents[0].IsActive())
	assert.False(t, seed.Agents[1].IsActive())
}

func TestLoadSeedEmptyPath(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	assert.Empty(t, seed.Assets)
	assert.Empty(t, seed.Agents)
}

func TestLoadSeedRejectsMissingSymbol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets:\n  - name: nameless\n"), 0644))

	_, err := LoadSeed(path)
	assert.Error(t, err)
}

func TestValidateDecisionInterval(t *testing.T) {
	cfg := &Config{
		CycleInterval:    5 * time.Minute,
		DecisionInterval: 15 * time.Minute,
		MaxParallel:      4,
		StartingCash:     100000,
	}
	assert.NoError(t, cfg.Validate())

	cfg.DecisionInterval = 7 * time.Minute
	assert.Error(t, cfg.Validate(), "decision interval must align with the cycle")

	cfg.DecisionInterval = 15 * time.Minute
	cfg.StartingCash = 0
	assert.Error(t, cfg.Validate())
}
