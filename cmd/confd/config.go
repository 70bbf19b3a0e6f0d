package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okt-galaktionov/confd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage confd.yaml configuration",
	Long: `Manage confd's runtime configuration (confd.yaml, CONFD_ environment
overrides, and defaults).

'confd config set' patches the key in confd.yaml's yaml tree in place,
preserving comments and key order. Bootstrap keys (db.driver, db.path)
select the storage backend itself and are resolved before anything else
at startup.

Examples:
  confd config set restore.max-outer-iterations 15
  confd config get db.driver
  confd config list`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		val := cfg.Get(key)
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"key": key, "value": val})
		}
		if val == nil {
			fmt.Printf("%s (not set)\n", key)
			return nil
		}
		fmt.Printf("%v\n", val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetYamlKey("confd.yaml", key, value); err != nil {
			return err
		}
		cfg.Set(key, value)

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]string{"key": key, "value": value})
		}
		if config.IsBootstrapKey(key) {
			fmt.Printf("set %s = %s (bootstrap key; applies at next startup)\n", key, value)
			return nil
		}
		fmt.Printf("set %s = %s\n", key, value)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every resolved configuration value",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := []string{
			"db.driver", "db.path", "db.busy-timeout", "actor",
			"restore.max-outer-iterations",
			"logging.level", "logging.format",
			"agent.subtrees",
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k] = cfg.Get(k)
		}
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, k := range keys {
			fmt.Printf("%-30s %v\n", k, out[k])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
}
