// Package tuning loads the server's runtime knobs from tuning.yaml.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ListenAddr string `yaml:"listen_addr"`

	TickRateHz int    `yaml:"tick_rate_hz"`
	MaxClients int    `yaml:"max_clients"`
	WorldSeed  uint64 `yaml:"world_seed"`

	ViewDistance int `yaml:"view_distance"`
	MaxQueuedGen int `yaml:"max_queued_gen"`

	EventLogDir string `yaml:"event_log_dir"`
	IndexDBPath string `yaml:"index_db_path"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	ChatWindowTicks    int `yaml:"chat_window_ticks"`
	ChatMax            int `yaml:"chat_max"`
	CommandWindowTicks int `yaml:"command_window_ticks"`
	CommandMax         int `yaml:"command_max"`
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.ListenAddr == "" {
		t.ListenAddr = ":8088"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 30
	}
	if t.MaxClients <= 0 {
		t.MaxClients = 64
	}
	if t.WorldSeed == 0 {
		t.WorldSeed = 1337
	}
	if t.ViewDistance <= 0 {
		t.ViewDistance = 10
	}
	if t.MaxQueuedGen <= 0 {
		t.MaxQueuedGen = 1024
	}
	if t.EventLogDir == "" {
		t.EventLogDir = "data/events"
	}
	if t.IndexDBPath == "" {
		t.IndexDBPath = "data/index.db"
	}
	if t.RateLimits.ChatWindowTicks <= 0 {
		t.RateLimits.ChatWindowTicks = 30
	}
	if t.RateLimits.ChatMax <= 0 {
		t.RateLimits.ChatMax = 5
	}
	if t.RateLimits.CommandWindowTicks <= 0 {
		t.RateLimits.CommandWindowTicks = 30
	}
	if t.RateLimits.CommandMax <= 0 {
		t.RateLimits.CommandMax = 20
	}
}

func (t Tuning) validate() error {
	if t.TickRateHz > 240 {
		return fmt.Errorf("tick_rate_hz %d out of range", t.TickRateHz)
	}
	if t.ViewDistance > 64 {
		return fmt.Errorf("view_distance %d out of range", t.ViewDistance)
	}
	return nil
}

// Load reads path and fills the gaps with defaults. A missing file is an
// error; use Defaults when running without one.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
