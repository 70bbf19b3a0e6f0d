package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds the bootstrap subset of confd.yaml: the keys that pick
// which storage backend to open and where, read directly off disk rather
// than through viper, so no CONFD_ environment override applies to them
// here. The yaml shape mirrors confd.yaml's nested
// "db: {driver, path}" section, not the dotted "db.driver" key names viper
// exposes.
type LocalConfig struct {
	DB struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"db"`
}

func (c *LocalConfig) DBDriver() string { return c.DB.Driver }
func (c *LocalConfig) DBPath() string   { return c.DB.Path }

// LoadLocal reads confd.yaml directly from dir. A missing or unparsable
// file yields a LocalConfig with the same defaults Config.Load would apply,
// never nil and never an error — bootstrap must proceed even with no
// config file present.
func LoadLocal(dir string) *LocalConfig {
	cfg := &LocalConfig{}
	cfg.DB.Driver = "memory"
	cfg.DB.Path = "confd.db"

	data, err := os.ReadFile(filepath.Join(dir, "confd.yaml")) //nolint:gosec // dir is caller-controlled
	if err != nil {
		return cfg
	}

	var onDisk LocalConfig
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return cfg
	}
	if onDisk.DB.Driver != "" {
		cfg.DB.Driver = onDisk.DB.Driver
	}
	if onDisk.DB.Path != "" {
		cfg.DB.Path = onDisk.DB.Path
	}
	return cfg
}
