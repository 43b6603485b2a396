// Package config loads palsave settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/palsave/pkg/entity"
)

// Config holds editor settings. Relative paths are resolved against the
// directory of the file they were loaded from.
type Config struct {
	// --- Naming ---
	Language            string `yaml:"language"`              // Reference data language (default "en")
	CloneNicknamePrefix string `yaml:"clone_nickname_prefix"` // Prepended to the display name of a cloned pal
	NewPalNickname      string `yaml:"new_pal_nickname"`      // Nickname of freshly added pals, empty = none

	// --- Pal care ---
	MaxStomach float32 `yaml:"max_stomach"` // Stomach value Heal fills to

	// --- Backups ---
	BackupDir    string `yaml:"backup_dir"`    // Archive directory (default "backups")
	BackupRetain int    `yaml:"backup_retain"` // Keep last N archives, 0 = unlimited

	// --- Stores ---
	PresetDB    string `yaml:"preset_db"`    // bbolt preset store (default "presets.bolt")
	JournalDB   string `yaml:"journal_db"`   // SQLite mutation journal, empty = disabled
	RefdataFile string `yaml:"refdata_file"` // YAML reference data, empty = raw ids

	// --- Observability ---
	MetricsAddr string `yaml:"metrics_addr"` // Prometheus listen address, empty = disabled
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Language:            "en",
		CloneNicknamePrefix: "",
		NewPalNickname:      "",
		MaxStomach:          entity.DefaultSettings{}.MaxStomach(),
		BackupDir:           "backups",
		BackupRetain:        10,
		PresetDB:            "presets.bolt",
	}
}

// Load reads a YAML config file and overlays it onto the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parsing YAML %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	for _, p := range []*string{&c.BackupDir, &c.PresetDB, &c.JournalDB, &c.RefdataFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	return c, nil
}

// Validate rejects values the editor cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return fmt.Errorf("language must not be empty")
	}
	if c.MaxStomach <= 0 {
		return fmt.Errorf("max_stomach must be positive, got %v", c.MaxStomach)
	}
	if c.BackupRetain < 0 {
		return fmt.Errorf("backup_retain must not be negative, got %d", c.BackupRetain)
	}
	return nil
}

// Settings adapts the config to the read-only settings the save document
// consumes.
func (c *Config) Settings() entity.Settings { return settings{c} }

type settings struct{ c *Config }

func (s settings) Language() string            { return s.c.Language }
func (s settings) CloneNicknamePrefix() string { return s.c.CloneNicknamePrefix }
func (s settings) NewPalNickname() string      { return s.c.NewPalNickname }
func (s settings) MaxStomach() float32         { return s.c.MaxStomach }
