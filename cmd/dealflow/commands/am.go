package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/am"
	"github.com/teranos/dealflow/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage dealflow configuration",
	Long: sym.AM + ` am - Manage dealflow configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (DEALFLOW_* prefix, plus OPENROUTER_API_KEY and GITHUB_TOKEN)
2. Project config (nearest ./am.toml walking up)
3. User config (~/.dealflow/am.toml)
4. System config (/etc/dealflow/am.toml)
5. Default values

Examples:
  dealflow am show                 # Show current configuration
  dealflow am show --format json   # Show configuration as JSON
  dealflow am get pipeline.task_timeout_seconds
  dealflow am validate             # Validate current configuration
  dealflow am init                 # Write ~/.dealflow/am.toml with current values`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged dealflow configuration. Secrets are masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g., database.path, pulse.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the current configuration to a file",
	Long: `Write the merged configuration as TOML. Defaults to ~/.dealflow/am.toml.
An existing file is kept as <path>.back1. API keys are never written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	data, err := am.Render(cfg, configFormat)
	if err != nil {
		return err
	}
	if configFormat != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "# dealflow configuration")
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, err := am.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Configuration sources (lowest precedence first)\n\n", sym.AM)
	for _, p := range am.ConfigPaths() {
		mark := "✗"
		if _, err := os.Stat(p); err == nil {
			mark = "✓"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, p)
	}
	fmt.Fprintln(out, "\nEnvironment variables with the DEALFLOW_ prefix override every file.")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to find home directory: %w", err)
		}
		path = filepath.Join(home, ".dealflow", "am.toml")
	}
	if err := am.WriteFile(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", sym.AM, path)
	return nil
}
