package cli

import (
	"fmt"

	"github.com/rustyeddy/cryptobot/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(ro *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, validate or show configuration files",
		Long: `Manage the bot configuration.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate a configuration file
  show     - Print the effective configuration with secrets masked

Examples:
  cryptobot config init -o config.yaml
  cryptobot config validate --config config.yaml`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd(ro), newConfigShowCmd(ro))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Default().SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nAdd credentials to .env (CRYPTOBOT_API_KEY, CRYPTOBOT_API_SECRET) and run with:")
			fmt.Fprintf(out, "  cryptobot run --config %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.yaml", "output config file path (.yaml, .json or .toml)")
	return cmd
}

func newConfigValidateCmd(ro *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", ro.ConfigPath)
			fmt.Fprintf(out, "  Symbols: %v\n", cfg.Cryptocurrencies)
			fmt.Fprintf(out, "  Max trade: $%.2f (position limit %.2f%%)\n", cfg.MaxTradeAmount, cfg.PositionSizeLimit*100)
			fmt.Fprintf(out, "  Take profit: %.2f%%, stop loss: %s\n", cfg.TakeProfitPercent, cfg.StopLoss)
			fmt.Fprintf(out, "  Interval: %s, fill check after %s\n", cfg.Interval(), cfg.Cooldown())
			fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
			return nil
		},
	}
}

func newConfigShowCmd(ro *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}
