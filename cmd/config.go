package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meshctl/meshcore/internal/config"
	"github.com/meshctl/meshcore/internal/errs"
)

var configShowFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the control plane configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file + environment overrides)",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set one configuration key and persist it to config.yaml",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset config.yaml to defaults",
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the resolved config directory",
	RunE:  runConfigPath,
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective (defaults + env overrides) configuration to config.yaml",
	RunE:  runConfigSave,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd, configPathCmd, configSaveCmd)

	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml", "output format: yaml or json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	var raw []byte
	switch configShowFormat {
	case "json":
		raw, err = json.MarshalIndent(cfg, "", "  ")
	case "yaml", "":
		raw, err = yaml.Marshal(cfg)
	default:
		return errs.New(errs.InvalidInput, "CLI", "config show --format must be yaml or json")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}

	if err := applyConfigKey(&cfg, key, value); err != nil {
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}

// applyConfigKey sets one dotted config key on cfg, covering the fields a
// user would reasonably want to tweak without hand-editing config.yaml.
func applyConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "log_level":
		cfg.LogLevel = value
	case "log_json":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.Wrap(errs.InvalidInput, "CLI", key, err)
		}
		cfg.LogJSON = b
	case "registry.host":
		cfg.Registry.Host = value
	case "registry.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.Wrap(errs.InvalidInput, "CLI", key, err)
		}
		cfg.Registry.Port = n
	case "registry.database_path":
		cfg.Registry.DatabasePath = value
	case "registry.redis_addr":
		cfg.Registry.RedisAddr = value
	case "registry.cache_ttl_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.Wrap(errs.InvalidInput, "CLI", key, err)
		}
		cfg.Registry.CacheTTLSecs = n
	case "registry.health_tick_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.Wrap(errs.InvalidInput, "CLI", key, err)
		}
		cfg.Registry.HealthTickSecs = n
	default:
		return errs.New(errs.InvalidInput, "CLI", "unknown config key "+key)
	}
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	_, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(dir, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reset %s/config.yaml to defaults\n", dir)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dir)
	return nil
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved configuration to %s/config.yaml\n", dir)
	return nil
}
