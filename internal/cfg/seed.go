package cfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mmbot/internal/risk"
	"mmbot/internal/store"
	"mmbot/internal/strategy"
	"mmbot/internal/volume"
)

// botSeed is the YAML shape of a bot definition file used to seed the store
// when the bot id is not present yet.
type botSeed struct {
	Symbol string          `yaml:"symbol"`
	Status string          `yaml:"status"`
	MM     strategy.Config `yaml:"mm"`
	Vol    volume.Config   `yaml:"vol"`
	Risk   risk.Config     `yaml:"risk"`
}

// LoadBotSeed parses a bot definition file into a record for botID.
func LoadBotSeed(path, botID string) (store.BotRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.BotRecord{}, fmt.Errorf("read bot file %s: %w", path, err)
	}

	var seed botSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return store.BotRecord{}, fmt.Errorf("parse bot file: %w", err)
	}
	if seed.Symbol == "" {
		return store.BotRecord{}, fmt.Errorf("bot file %s: symbol is required", path)
	}
	if seed.Status == "" {
		seed.Status = "RUNNING"
	}

	return store.BotRecord{
		ID:     botID,
		Symbol: seed.Symbol,
		Status: seed.Status,
		MM:     seed.MM,
		Vol:    seed.Vol,
		Risk:   seed.Risk,
	}, nil
}
