/*
Package config
File: config.go
Description:
    Loads 'moai.yaml': server settings, heartbeat loop timing, input limits
    and the generator catalog. Every value has a default, so a missing
    file section falls back to Default().
*/

package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/everforgeworks/moai-clicker/internal/game"
)

// Server configures the HTTP/WebSocket listener.
type Server struct {
	Addr          string `yaml:"addr"`           // Listen address (e.g., ":8081")
	AllowedOrigin string `yaml:"allowed_origin"` // Value for Access-Control-Allow-Origin
}

// Loop configures the heartbeat that feeds elapsed time into the economy.
type Loop struct {
	TickInterval   time.Duration `yaml:"tick_interval"`   // How often the clock is sampled
	BroadcastEvery int           `yaml:"broadcast_every"` // Push a state pulse every N ticks
}

// Limits throttles player-triggered actions per connected client.
type Limits struct {
	ActionsPerSecond float64 `yaml:"actions_per_second"`
	Burst            int     `yaml:"burst"`
	MaxClickAmount   float64 `yaml:"max_click_amount"` // Largest amount a client may send with one click
}

// Config is the root struct, mapping to the entire 'moai.yaml' file.
type Config struct {
	Server     Server               `yaml:"server"`
	Loop       Loop                 `yaml:"loop"`
	Limits     Limits               `yaml:"limits"`
	Generators []game.GeneratorKind `yaml:"generators"`
}

// DefaultGenerators is the catalog used when the file names none.
func DefaultGenerators() []game.GeneratorKind {
	return []game.GeneratorKind{
		{ID: "cursor", Name: "Chisel", BaseCost: 10, Rate: 0.1},
		{ID: "carver", Name: "Stone Carver", BaseCost: 100, Rate: 2},
		{ID: "quarry", Name: "Quarry", BaseCost: 1000, Rate: 50},
	}
}

// Default returns a complete configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8081",
			AllowedOrigin: "*",
		},
		Loop: Loop{
			TickInterval:   100 * time.Millisecond,
			BroadcastEvery: 10,
		},
		Limits: Limits{
			ActionsPerSecond: 20,
			Burst:            40,
			MaxClickAmount:   1,
		},
		Generators: DefaultGenerators(),
	}
}

// Load reads the YAML file at path over Default() and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default() and validates the result.
// A generators list in the document replaces the default catalog entirely.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Generators = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if len(cfg.Generators) == 0 {
		cfg.Generators = DefaultGenerators()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks loop and limit settings. Catalog entries are checked by Catalog.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is empty")
	}
	if c.Loop.TickInterval <= 0 {
		return fmt.Errorf("config: loop.tick_interval must be positive, got %v", c.Loop.TickInterval)
	}
	if c.Loop.BroadcastEvery <= 0 {
		return fmt.Errorf("config: loop.broadcast_every must be positive, got %d", c.Loop.BroadcastEvery)
	}
	if c.Limits.ActionsPerSecond <= 0 || c.Limits.Burst <= 0 {
		return fmt.Errorf("config: limits must be positive, got %v/s burst %d", c.Limits.ActionsPerSecond, c.Limits.Burst)
	}
	if !(c.Limits.MaxClickAmount >= game.ManualActionAmount) || math.IsInf(c.Limits.MaxClickAmount, 1) {
		return fmt.Errorf("config: limits.max_click_amount must be finite and at least %v, got %v", game.ManualActionAmount, c.Limits.MaxClickAmount)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Catalog builds the immutable generator catalog.
func (c Config) Catalog() (*game.Catalog, error) {
	return game.NewCatalog(c.Generators)
}
