package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rustyeddy/cryptobot/backup"
	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/broker/coinbase"
	"github.com/rustyeddy/cryptobot/broker/paper"
	"github.com/rustyeddy/cryptobot/config"
	"github.com/rustyeddy/cryptobot/journal"
	"github.com/rustyeddy/cryptobot/lock"
	"github.com/rustyeddy/cryptobot/notify"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/rustyeddy/cryptobot/trade"
	"github.com/shopspring/decimal"
)

// app is a fully wired trader plus the resources to release on exit.
type app struct {
	trader  *trade.Trader
	cleanup []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, a.cleanup[i]())
	}
	return errors.Join(errs...)
}

func (ro *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(ro.ConfigPath, ro.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newCoinbase(cfg *config.Config, logger *slog.Logger) (*coinbase.Client, error) {
	retry := coinbase.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries + 1
	return coinbase.NewClient(coinbase.Config{
		Sandbox:   cfg.SandboxMode,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Timeout:   cfg.Timeout(),
		Retry:     retry,
		Logger:    logger,
	})
}

func newGateway(cfg *config.Config, paperMode bool, logger *slog.Logger) (broker.Gateway, error) {
	cb, err := newCoinbase(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !paperMode {
		if !cb.Authenticated() {
			return nil, errors.New("api_key and api_secret are required for live trading (use --paper to simulate)")
		}
		return cb, nil
	}

	holdings := make(map[string]decimal.Decimal, len(cfg.Paper.Holdings))
	for sym, qty := range cfg.Paper.Holdings {
		holdings[sym] = decimal.NewFromFloat(qty)
	}
	return paper.NewGateway(paper.Config{
		Data:     cb,
		Cash:     decimal.NewFromFloat(cfg.Paper.Cash),
		Holdings: holdings,
		Logger:   logger,
	})
}

// openJournal opens the journals selected by cfg.Journal.Type. It returns a
// nil journal for "none".
func openJournal(cfg *config.Config) (journal.Journal, error) {
	jc := cfg.Journal
	var js []journal.Journal
	closeAll := func() {
		for _, j := range js {
			_ = j.Close()
		}
	}

	if jc.Type == "csv" || jc.Type == "both" {
		j, err := journal.NewCSV(jc.OrdersFile, jc.CyclesFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		js = append(js, j)
	}
	if jc.Type == "sqlite" || jc.Type == "both" {
		j, err := openSQLite(cfg)
		if err != nil {
			closeAll()
			return nil, err
		}
		js = append(js, j)
	}

	switch len(js) {
	case 0:
		return nil, nil
	case 1:
		return js[0], nil
	}
	return journal.Tee(js...), nil
}

func openSQLite(cfg *config.Config) (*journal.SQLite, error) {
	path := cfg.Journal.DBPath
	if path == "" {
		path = filepath.Join(cfg.StateDir, "journal.db")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal %s: %w", path, err)
	}
	return j, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if n := cfg.Notify; n.TelegramToken != "" && n.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(n.TelegramToken, n.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

// wire builds a Trader and its optional collaborators from cfg.
func wire(ctx context.Context, cfg *config.Config, paperMode bool, logger *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	gw, err := newGateway(cfg, paperMode, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	pred, err := predict.ByName(cfg.Predictor, cfg.PredictorPeriod)
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}

	deps := trade.Deps{
		Gateway:   gw,
		Predictor: pred,
		Store:     store,
		Logger:    logger,
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fail(err)
	}
	if j != nil {
		deps.Journal = j
		a.cleanup = append(a.cleanup, j.Close)
	}

	if cfg.Lock.RedisAddr != "" {
		l, err := lock.New(ctx, lock.Config{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.Password,
			DB:       cfg.Lock.DB,
		})
		if err != nil {
			return fail(fmt.Errorf("lock: %w", err))
		}
		deps.Locker = l
		a.cleanup = append(a.cleanup, l.Close)
	}

	if b := cfg.Backup; b.Bucket != "" {
		s3, err := backup.New(ctx, backup.Config{
			Endpoint:       b.Endpoint,
			Region:         b.Region,
			Bucket:         b.Bucket,
			AccessKey:      b.AccessKey,
			SecretKey:      b.SecretKey,
			Prefix:         b.Prefix,
			ForcePathStyle: b.ForcePathStyle,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("backup: %w", err))
		}
		deps.Backup = s3
	}

	if n := newNotifier(cfg, logger); n.Enabled() {
		deps.Notifier = n
	}

	t, err := trade.NewTrader(cfg, deps)
	if err != nil {
		return fail(err)
	}
	a.trader = t
	return a, nil
}
