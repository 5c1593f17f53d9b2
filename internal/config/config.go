package config

import (
	"fmt"
	"os"

	"HodlFarm/internal/amount"
	"HodlFarm/internal/model"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. HODLFARM_FARM_REWARD_RATE.
const EnvPrefix = "hodlfarm"

// DefaultFarmAddress identifies the farm on the ledger when none is configured.
const DefaultFarmAddress = "0x000000000000000000000000000000000000f4a1"

// Config holds all application configuration.
type Config struct {
	Farm struct {
		Address        model.Address `yaml:"address"         split_words:"true"`
		RewardRate     amount.Amount `yaml:"reward_rate"     split_words:"true"`
		RewardPool     amount.Amount `yaml:"reward_pool"     split_words:"true"`
		StateFile      string        `yaml:"state_file"      split_words:"true"`
		Treasury       model.Address `yaml:"treasury"`
		TreasuryReward amount.Amount `yaml:"treasury_reward" split_words:"true"`
		// Genesis seeds collateral balances deposited from outside the farm.
		Genesis map[model.Address]amount.Amount `yaml:"genesis" ignored:"true"`
	} `yaml:"farm"`
	Telegram struct {
		BotToken string `yaml:"bot_token" split_words:"true"`
		ChatID   string `yaml:"chat_id"   split_words:"true"`
	} `yaml:"telegram"`
	Schedule struct {
		SnapshotCron  string `yaml:"snapshot_cron"   split_words:"true"`
		PoolCheckCron string `yaml:"pool_check_cron" split_words:"true"`
		ReportCron    string `yaml:"report_cron"     split_words:"true"`
	} `yaml:"schedule"`
	Alerts struct {
		LowPoolThreshold amount.Amount `yaml:"low_pool_threshold" split_words:"true"`
	} `yaml:"alerts"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddress string `yaml:"listen_address" split_words:"true"`
	} `yaml:"metrics"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	// Conventional proxy variable, same as the HTTP client honours.
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Farm.Address == "" {
		c.Farm.Address = model.Address(DefaultFarmAddress)
	}
	if c.Farm.RewardRate.IsZero() {
		c.Farm.RewardRate = amount.MustParse("0.000001")
	}
	if c.Farm.RewardPool.IsZero() {
		c.Farm.RewardPool = amount.FromUnits(21000000)
	}
	if c.Farm.StateFile == "" {
		c.Farm.StateFile = "data/farm_state.json"
	}
	if c.Schedule.SnapshotCron == "" {
		c.Schedule.SnapshotCron = "0 */5 * * * *"
	}
	if c.Schedule.PoolCheckCron == "" {
		c.Schedule.PoolCheckCron = "0 0 * * * *"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 9 * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/hodlfarm.db"
	}
	if c.Metrics.ListenAddress == "" {
		c.Metrics.ListenAddress = ":9102"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "plain"
	}
}

// NotifierEnabled reports whether Telegram credentials are present.
func (c *Config) NotifierEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set and well formed.
func (c *Config) Validate() error {
	if _, err := model.ParseAddress(string(c.Farm.Address)); err != nil {
		return fmt.Errorf("farm.address: %w", err)
	}
	if c.Farm.RewardRate.IsZero() {
		return fmt.Errorf("farm.reward_rate must be positive")
	}
	if c.Farm.RewardPool.IsZero() {
		return fmt.Errorf("farm.reward_pool must be positive")
	}
	if !c.Farm.TreasuryReward.IsZero() {
		if c.Farm.Treasury == "" {
			return fmt.Errorf("farm.treasury is required when farm.treasury_reward is set")
		}
		if c.Farm.Treasury == c.Farm.Address {
			return fmt.Errorf("farm.treasury must differ from farm.address")
		}
	}
	if _, ok := c.Farm.Genesis[c.Farm.Address]; ok {
		return fmt.Errorf("farm.genesis must not credit farm.address")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.snapshot_cron":   c.Schedule.SnapshotCron,
		"schedule.pool_check_cron": c.Schedule.PoolCheckCron,
		"schedule.report_cron":     c.Schedule.ReportCron,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch c.Logging.Format {
	case "plain", "json":
	default:
		return fmt.Errorf("logging.format must be plain or json, got %q", c.Logging.Format)
	}
	return nil
}
