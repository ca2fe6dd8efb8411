package cli

import (
	"fmt"
	"time"

	"github.com/rustyeddy/cryptobot/backtest"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newBacktestCmd(ro *RootOptions) *cobra.Command {
	var (
		days     int
		cash     float64
		closeEnd bool
	)

	cmd := &cobra.Command{
		Use:   "backtest <symbol>",
		Short: "Replay recent candles through the trading rules",
		Long: `Fetch candles from Coinbase and replay them through the configured
predictor, signal rules, ratchet and sizer. Orders fill at the close of
the bar that produced them.

Example:
  cryptobot backtest BTC --days 365 --close-end`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			sym := args[0]
			if days <= 0 {
				days = cfg.LookbackDays
			}
			if cash <= 0 {
				cash = cfg.Paper.Cash
			}

			pred, err := predict.ByName(cfg.Predictor, cfg.PredictorPeriod)
			if err != nil {
				return fmt.Errorf("predictor: %w", err)
			}
			gran, err := market.ParseGranularity(cfg.Granularity)
			if err != nil {
				return err
			}
			cb, err := newCoinbase(cfg, ro.logger())
			if err != nil {
				return fmt.Errorf("gateway: %w", err)
			}

			ctx := cmd.Context()
			end := time.Now().UTC()
			candles, err := cb.Candles(ctx, sym, end.AddDate(0, 0, -days), end, gran)
			if err != nil {
				return err
			}
			sizeInc, err := cb.SizeIncrement(ctx, sym)
			if err != nil {
				return err
			}
			priceInc, err := cb.PriceIncrement(ctx, sym)
			if err != nil {
				return err
			}

			warmup := cfg.PredictorPeriod
			if warmup <= 0 {
				warmup = predict.DefaultPeriod
			}
			r := &backtest.Runner{
				Symbol:         sym,
				Candles:        candles,
				Predictor:      pred,
				Policy:         cfg.Policy,
				Cash:           decimal.NewFromFloat(cash),
				SizeIncrement:  sizeInc,
				PriceIncrement: priceInc,
				Options:        backtest.RunnerOptions{Warmup: warmup, CloseEnd: closeEnd},
			}
			res, err := r.Run(ctx)
			if err != nil {
				return err
			}
			backtest.PrintResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days of history (default lookback_days)")
	cmd.Flags().Float64Var(&cash, "cash", 0, "starting quote balance (default paper.cash)")
	cmd.Flags().BoolVar(&closeEnd, "close-end", false, "sell any open position at the last close")
	return cmd
}
