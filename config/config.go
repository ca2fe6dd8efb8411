package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration. It is loaded once and passed
// explicitly to every component.
type Config struct {
	Cryptocurrencies  []string `json:"cryptocurrencies" yaml:"cryptocurrencies" toml:"cryptocurrencies"`
	MaxTradeAmount    float64  `json:"max_trade_amount" yaml:"max_trade_amount" toml:"max_trade_amount"`
	PositionSizeLimit float64  `json:"position_size_limit" yaml:"position_size_limit" toml:"position_size_limit"`
	TakeProfitPercent float64  `json:"take_profit_percent" yaml:"take_profit_percent" toml:"take_profit_percent"`
	StopLoss          StopLoss `json:"stop_loss_percentages" yaml:"stop_loss_percentages" toml:"stop_loss_percentages"`

	TradeIntervalHours float64 `json:"trade_interval_hours" yaml:"trade_interval_hours" toml:"trade_interval_hours"`
	CheckFillTime      float64 `json:"check_fill_time" yaml:"check_fill_time" toml:"check_fill_time"` // minutes
	FillPollAttempts   int     `json:"fill_poll_attempts" yaml:"fill_poll_attempts" toml:"fill_poll_attempts"`
	FillPollDelay      float64 `json:"fill_poll_delay_seconds" yaml:"fill_poll_delay_seconds" toml:"fill_poll_delay_seconds"`

	LookbackDays    int    `json:"lookback_days" yaml:"lookback_days" toml:"lookback_days"`
	Granularity     string `json:"granularity" yaml:"granularity" toml:"granularity"`
	Predictor       string `json:"predictor" yaml:"predictor" toml:"predictor"`
	PredictorPeriod int    `json:"predictor_period" yaml:"predictor_period" toml:"predictor_period"`

	APIKey         string  `json:"api_key" yaml:"api_key" toml:"api_key"`
	APISecret      string  `json:"api_secret" yaml:"api_secret" toml:"api_secret"`
	SandboxMode    bool    `json:"sandbox_mode" yaml:"sandbox_mode" toml:"sandbox_mode"`
	RequestTimeout float64 `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	MaxRetries     int     `json:"max_retries" yaml:"max_retries" toml:"max_retries"`

	StateDir string        `json:"state_dir" yaml:"state_dir" toml:"state_dir"`
	Journal  JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
	Paper    PaperConfig   `json:"paper" yaml:"paper" toml:"paper"`
	Notify   NotifyConfig  `json:"notify" yaml:"notify" toml:"notify"`
	Lock     LockConfig    `json:"lock" yaml:"lock" toml:"lock"`
	Backup   BackupConfig  `json:"backup" yaml:"backup" toml:"backup"`
}

// JournalConfig selects where order and cycle records are mirrored.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type" toml:"type"` // "csv", "sqlite", "both" or "none"
	OrdersFile string `json:"orders_file,omitempty" yaml:"orders_file,omitempty" toml:"orders_file"`
	CyclesFile string `json:"cycles_file,omitempty" yaml:"cycles_file,omitempty" toml:"cycles_file"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path"`
}

// PaperConfig seeds the simulated account used by --paper.
type PaperConfig struct {
	Cash     float64            `json:"cash" yaml:"cash" toml:"cash"`
	Holdings map[string]float64 `json:"holdings,omitempty" yaml:"holdings,omitempty" toml:"holdings"`
}

// NotifyConfig configures outbound alerts. Empty tokens disable a channel.
type NotifyConfig struct {
	TelegramToken  string   `json:"telegram_token,omitempty" yaml:"telegram_token,omitempty" toml:"telegram_token"`
	TelegramChatID string   `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty" toml:"telegram_chat_id"`
	DiscordWebhook string   `json:"discord_webhook,omitempty" yaml:"discord_webhook,omitempty" toml:"discord_webhook"`
	Events         []string `json:"events,omitempty" yaml:"events,omitempty" toml:"events"`
}

// LockConfig enables the Redis single-instance guard when RedisAddr is set.
type LockConfig struct {
	RedisAddr string  `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" toml:"redis_addr"`
	Password  string  `json:"password,omitempty" yaml:"password,omitempty" toml:"password"`
	DB        int     `json:"db,omitempty" yaml:"db,omitempty" toml:"db"`
	Key       string  `json:"key,omitempty" yaml:"key,omitempty" toml:"key"`
	TTL       float64 `json:"ttl_minutes,omitempty" yaml:"ttl_minutes,omitempty" toml:"ttl_minutes"`
}

// BackupConfig enables S3 copies of the state files when Bucket is set.
type BackupConfig struct {
	Bucket         string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket"`
	Region         string `json:"region,omitempty" yaml:"region,omitempty" toml:"region"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint"`
	AccessKey      string `json:"access_key,omitempty" yaml:"access_key,omitempty" toml:"access_key"`
	SecretKey      string `json:"secret_key,omitempty" yaml:"secret_key,omitempty" toml:"secret_key"`
	Prefix         string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix"`
	ForcePathStyle bool   `json:"force_path_style,omitempty" yaml:"force_path_style,omitempty" toml:"force_path_style"`
}

// Default returns the stock settings: BTC and ETH, $100 trades, daily cycles.
func Default() *Config {
	return &Config{
		Cryptocurrencies:   []string{"BTC", "ETH"},
		MaxTradeAmount:     100,
		PositionSizeLimit:  0.1,
		TakeProfitPercent:  5,
		StopLoss:           StopLoss{Tiers: map[string]float64{"100+": 5}},
		TradeIntervalHours: 24,
		CheckFillTime:      1,
		FillPollAttempts:   3,
		FillPollDelay:      5,
		LookbackDays:       250,
		Granularity:        string(market.OneDay),
		Predictor:          "trend",
		PredictorPeriod:    predict.DefaultPeriod,
		RequestTimeout:     15,
		MaxRetries:         3,
		StateDir:           "./data",
		Journal: JournalConfig{
			Type:       "sqlite",
			DBPath:     "./data/journal.db",
			OrdersFile: "./data/orders.csv",
			CyclesFile: "./data/cycles.csv",
		},
		Paper: PaperConfig{Cash: 1000},
		Lock: LockConfig{
			Key: "cryptobot:cycle",
			TTL: 30,
		},
		Backup: BackupConfig{Prefix: "cryptobot"},
	}
}

// Load reads .env files (missing ones are ignored), loads path, applies
// CRYPTOBOT_* environment overrides and validates the result.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration on top of Default. TOML is used for .toml
// files; anything else is tried as YAML first, then JSON. The result is not
// validated.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	// An explicit stop loss replaces the default tiers instead of merging.
	cfg.StopLoss = StopLoss{}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config (TOML): %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		cfg.StopLoss = StopLoss{}
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if cfg.StopLoss.IsZero() {
		cfg.StopLoss = Default().StopLoss
	}
	return cfg, nil
}

// SaveToFile writes the configuration, choosing the format by extension
// (.yaml/.yml, .toml, otherwise JSON).
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides credentials and deployment knobs from CRYPTOBOT_*
// variables. lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(&c.APIKey, "CRYPTOBOT_API_KEY")
	str(&c.APISecret, "CRYPTOBOT_API_SECRET")
	str(&c.StateDir, "CRYPTOBOT_STATE_DIR")
	str(&c.Notify.TelegramToken, "CRYPTOBOT_TELEGRAM_TOKEN")
	str(&c.Notify.TelegramChatID, "CRYPTOBOT_TELEGRAM_CHAT_ID")
	str(&c.Notify.DiscordWebhook, "CRYPTOBOT_DISCORD_WEBHOOK")
	str(&c.Lock.RedisAddr, "CRYPTOBOT_REDIS_ADDR")
	str(&c.Lock.Password, "CRYPTOBOT_REDIS_PASSWORD")
	str(&c.Backup.Bucket, "CRYPTOBOT_S3_BUCKET")
	str(&c.Backup.AccessKey, "CRYPTOBOT_S3_ACCESS_KEY")
	str(&c.Backup.SecretKey, "CRYPTOBOT_S3_SECRET_KEY")

	if v, ok := lookup("CRYPTOBOT_SANDBOX_MODE"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			c.SandboxMode = true
		case "0", "false", "no", "off":
			c.SandboxMode = false
		}
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Cryptocurrencies) == 0 {
		add("cryptocurrencies must list at least one symbol")
	}
	seen := make(map[string]bool, len(c.Cryptocurrencies))
	for _, s := range c.Cryptocurrencies {
		switch {
		case strings.TrimSpace(s) == "":
			add("cryptocurrencies contains an empty symbol")
		case seen[s]:
			add("cryptocurrencies lists %s twice", s)
		}
		seen[s] = true
	}
	if c.MaxTradeAmount <= 0 {
		add("max_trade_amount must be positive")
	}
	if c.PositionSizeLimit <= 0 || c.PositionSizeLimit > 1 {
		add("position_size_limit must be in (0, 1]")
	}
	if c.TakeProfitPercent <= 0 {
		add("take_profit_percent must be positive")
	}
	if err := c.StopLoss.Validate(); err != nil {
		add("stop_loss_percentages: %v", err)
	}
	if c.TradeIntervalHours <= 0 {
		add("trade_interval_hours must be positive")
	}
	if c.CheckFillTime < 0 {
		add("check_fill_time must not be negative")
	}
	if c.FillPollAttempts < 1 {
		add("fill_poll_attempts must be at least 1")
	}
	if c.FillPollDelay < 0 {
		add("fill_poll_delay_seconds must not be negative")
	}
	if c.LookbackDays < 1 {
		add("lookback_days must be at least 1")
	}
	if _, err := market.ParseGranularity(c.Granularity); err != nil {
		add("granularity: %v", err)
	}
	if _, err := predict.ByName(c.Predictor, c.PredictorPeriod); err != nil {
		add("predictor: %v", err)
	}
	if c.RequestTimeout <= 0 {
		add("request_timeout_seconds must be positive")
	}
	if c.MaxRetries < 0 {
		add("max_retries must not be negative")
	}
	if c.StateDir == "" {
		add("state_dir is required")
	}

	switch c.Journal.Type {
	case "none":
	case "csv", "sqlite", "both":
		if c.Journal.Type != "sqlite" && (c.Journal.OrdersFile == "" || c.Journal.CyclesFile == "") {
			add("journal orders_file and cycles_file are required for CSV")
		}
		if c.Journal.Type != "csv" && c.Journal.DBPath == "" {
			add("journal db_path is required for SQLite")
		}
	default:
		add("journal.type must be one of csv, sqlite, both, none")
	}

	if c.Paper.Cash < 0 {
		add("paper.cash must not be negative")
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify.telegram_token and notify.telegram_chat_id must be set together")
	}
	if c.Lock.RedisAddr != "" && c.Lock.TTL <= 0 {
		add("lock.ttl_minutes must be positive")
	}
	if c.Backup.Bucket != "" && c.Backup.Region == "" && c.Backup.Endpoint == "" {
		add("backup.region or backup.endpoint is required")
	}

	if len(problems) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// Policy returns the sizing limits. Levels are per price; see Levels.
func (c *Config) Policy(price decimal.Decimal) risk.Policy {
	return risk.Policy{
		MaxTradeAmount:    decimal.NewFromFloat(c.MaxTradeAmount),
		PositionSizeLimit: decimal.NewFromFloat(c.PositionSizeLimit),
		Levels:            c.Levels(price),
	}
}

// Levels returns the take-profit and stop-loss fractions for a symbol
// trading at price.
func (c *Config) Levels(price decimal.Decimal) risk.Levels {
	return risk.LevelsFromPercent(c.TakeProfitPercent, c.StopLoss.For(price))
}

// Interval is the time between trading cycles.
func (c *Config) Interval() time.Duration {
	return hours(c.TradeIntervalHours)
}

// Cooldown is the wait between submitting orders and the first fill check.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CheckFillTime * float64(time.Minute))
}

// PollDelay is the wait between fill checks.
func (c *Config) PollDelay() time.Duration {
	return seconds(c.FillPollDelay)
}

// Timeout is the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return seconds(c.RequestTimeout)
}

// LockTTL is how long the cycle lock is held before it expires on its own.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTL * float64(time.Minute))
}

// Lookback is the candle history window fetched each cycle.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

func hours(h float64) time.Duration   { return time.Duration(h * float64(time.Hour)) }
func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Cryptocurrencies = append([]string(nil), c.Cryptocurrencies...)
	out.StopLoss = c.StopLoss.clone()
	mask(&out.APIKey)
	mask(&out.APISecret)
	mask(&out.Notify.TelegramToken)
	mask(&out.Notify.DiscordWebhook)
	mask(&out.Lock.Password)
	mask(&out.Backup.AccessKey)
	mask(&out.Backup.SecretKey)
	return &out
}

func mask(s *string) {
	if *s != "" {
		*s = "********"
	}
}
