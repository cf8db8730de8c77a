package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel    string    `mapstructure:"log_level"`
	Instruments []string  `mapstructure:"instruments"`
	DepthTiers  []float64 `mapstructure:"depth_tiers"`

	API struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"api"`

	Feed struct {
		WSURL       string `mapstructure:"ws_url"`
		SnapshotURL string `mapstructure:"snapshot_url"`
	} `mapstructure:"feed"`

	Sequencer struct {
		RetryMin  time.Duration `mapstructure:"retry_min"`
		RetryMax  time.Duration `mapstructure:"retry_max"`
		BufferCap int           `mapstructure:"buffer_cap"`
	} `mapstructure:"sequencer"`
}

// Load reads the YAML config (path, or ./depthbook.yaml when empty) with
// DEPTHBOOK_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("depthbook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("DEPTHBOOK")
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("depth_tiers", []float64{0.001, 0.005, 0.01})
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("sequencer.retry_min", 250*time.Millisecond)
	v.SetDefault("sequencer.retry_max", 5*time.Second)
	v.SetDefault("sequencer.buffer_cap", 1<<16)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("config: at least one instrument is required")
	}
	return &cfg, nil
}
