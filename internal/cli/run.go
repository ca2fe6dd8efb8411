package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(ro *RootOptions) *cobra.Command {
	var paperMode bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trade every trade_interval_hours until interrupted",
		Long: `Run a trading cycle now and then once per trade interval, measured
start to start. SIGINT or SIGTERM stops the loop between symbols; the cycle
in progress still saves its state.

Examples:
  cryptobot run --config config.yaml
  cryptobot run --paper`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wire(ctx, cfg, paperMode, ro.logger())
			if err != nil {
				return err
			}
			defer closeApp(ro.logger(), a)

			return a.trader.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&paperMode, "paper", false, "Simulate balances and fills against live market data")
	return cmd
}

func newOnceCmd(ro *RootOptions) *cobra.Command {
	var paperMode bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single trading cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := wire(ctx, cfg, paperMode, ro.logger())
			if err != nil {
				return err
			}
			defer closeApp(ro.logger(), a)

			res, err := a.trader.RunCycle(ctx)
			fmt.Fprintf(cmd.OutOrStdout(),
				"balance %s: submitted %d, filled %d, cancelled %d, failed %d, rejected %d\n",
				res.Balance.StringFixed(2), res.Submitted, res.Filled, res.Cancelled, res.Failed, res.Rejected)
			for sym, serr := range res.SymbolErrors {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", sym, serr)
			}
			if err != nil {
				return fmt.Errorf("cycle: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&paperMode, "paper", false, "Simulate balances and fills against live market data")
	return cmd
}

func closeApp(logger *slog.Logger, a *app) {
	if err := a.Close(); err != nil {
		logger.Warn("shutdown", slog.Any("err", err))
	}
}
