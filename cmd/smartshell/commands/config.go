package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/smartshell/pkg/smartshell/copilot"
)

// newConfigCmd creates the `smartshell config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
		Long: `Manage the SmartShell configuration and API key.

Examples:
  smartshell config init
  smartshell config show
  smartshell config set-key
  smartshell config delete-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = filepath.Join(copilot.DefaultStateDir(), "config.yaml")
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := copilot.SaveConfigToFile(copilot.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			copilot.ResolveAPIKey(cfg, slog.New(slog.DiscardHandler))

			shown := *cfg
			if shown.API.APIKey != "" {
				shown.API.APIKey = "(set)"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults, no file)"
			}
			fmt.Printf("# source: %s\n%s", path, data)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the model API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := copilot.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}
			if err := copilot.StoreAPIKey(key); err != nil {
				return err
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the model API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := copilot.DeleteAPIKey(); err != nil {
				return err
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}

// resolveConfig loads the --config file, a discovered file, or defaults.
// The returned path is empty when no file was used.
func resolveConfig(cmd *cobra.Command) (*copilot.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := copilot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, configPath, nil
	}

	if found := copilot.FindConfigFile(); found != "" {
		cfg, err := copilot.LoadConfigFromFile(found)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, found, nil
	}

	return copilot.LoadDefaultConfig(), "", nil
}
