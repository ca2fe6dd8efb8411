package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/config"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/spf13/cobra"
)

// productLister is swapped in tests.
var productLister = func(cfg *config.Config, logger *slog.Logger) (broker.ProductLister, error) {
	return newCoinbase(cfg, logger)
}

func newPairsCmd(ro *RootOptions) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "List tradable USD spot pairs",
		Long: `List the enabled spot products quoted in USD. With --write the base
currencies replace cryptocurrencies in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			pl, err := productLister(cfg, ro.logger())
			if err != nil {
				return err
			}
			products, err := pl.Products(cmd.Context(), market.QuoteCurrency)
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}

			out := cmd.OutOrStdout()
			bases := make([]string, 0, len(products))
			for _, p := range products {
				if p.Disabled {
					continue
				}
				bases = append(bases, p.Base)
				fmt.Fprintf(out, "%-12s size %-12s price %s\n", p.ID, p.BaseIncrement, p.PriceIncrement)
			}
			sort.Strings(bases)
			fmt.Fprintf(out, "%d pairs\n", len(bases))

			if !write {
				return nil
			}
			// Re-read the file so environment overrides are not written back.
			raw, err := config.LoadFromFile(ro.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			raw.Cryptocurrencies = bases
			if err := raw.SaveToFile(ro.ConfigPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "✓ Wrote %d cryptocurrencies to %s\n", len(bases), ro.ConfigPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "store the pairs in the config file")
	return cmd
}
