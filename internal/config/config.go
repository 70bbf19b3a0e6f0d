// Package config resolves confd's runtime configuration from confd.yaml,
// CONFD_-prefixed environment variables, and defaults, via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BootstrapKeys decide which instance store backend is opened and where.
// The CLI reads them through the Config built by Load before it opens the
// store; LoadLocal reads the same keys straight from confd.yaml.
var BootstrapKeys = map[string]bool{
	"db.driver": true,
	"db.path":   true,
}

// Config is confd's resolved configuration surface.
type Config struct {
	v *viper.Viper
}

// Load builds a Config by reading confd.yaml from searchPaths (falling back
// to the current directory), applying CONFD_ environment overrides, and
// filling in defaults for anything unset. A missing config file is not an
// error; confd runs on defaults plus environment alone.
func Load(searchPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONFD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetConfigName("confd")
	v.SetConfigType("yaml")

	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read confd.yaml: %w", err)
		}
	}

	return &Config{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.path", "confd.db")
	v.SetDefault("db.busy-timeout", "30s")
	v.SetDefault("actor", "")
	// Mirrors restore.DefaultMaxOuterIterations; kept as a literal here
	// rather than importing internal/restore to avoid coupling the
	// configuration layer to the reconciliation engine.
	v.SetDefault("restore.max-outer-iterations", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("agent.subtrees", []string{})
}

func (c *Config) DBDriver() string               { return c.v.GetString("db.driver") }
func (c *Config) DBPath() string                 { return c.v.GetString("db.path") }
func (c *Config) DBBusyTimeout() time.Duration   { return c.v.GetDuration("db.busy-timeout") }
func (c *Config) Actor() string                  { return c.v.GetString("actor") }
func (c *Config) RestoreMaxOuterIterations() int { return c.v.GetInt("restore.max-outer-iterations") }
func (c *Config) LoggingLevel() string           { return c.v.GetString("logging.level") }
func (c *Config) LoggingFormat() string          { return c.v.GetString("logging.format") }
func (c *Config) AgentSubtrees() []string        { return c.v.GetStringSlice("agent.subtrees") }

// ConfigFileUsed returns the path viper resolved confd.yaml to, or "" if
// none was found.
func (c *Config) ConfigFileUsed() string { return c.v.ConfigFileUsed() }

// Get/Set expose the underlying key space for the CLI's generic
// `config get`/`config set` commands.
func (c *Config) Get(key string) any      { return c.v.Get(key) }
func (c *Config) Set(key string, val any) { c.v.Set(key, val) }
