package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIp string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"PORT" env-default:"3000"`
}

type Discord struct {
	Token             string `yaml:"token" env:"DISCORD_TOKEN" env-default:""`
	Prefix            string `yaml:"prefix" env-default:"!"`
	CategoryID        string `yaml:"category_id" env-default:""`
	ConfirmTimeoutSec int    `yaml:"confirm_timeout_sec" env-default:"30"`
	DMFallback        bool   `yaml:"dm_fallback" env-default:"false"`
}

type Verification struct {
	CodeLength       int `yaml:"code_length" env-default:"6"`
	CodeTTLMin       int `yaml:"code_ttl_min" env-default:"15"`
	SweepIntervalSec int `yaml:"sweep_interval_sec" env-default:"60"`
	QueueSize        int `yaml:"queue_size" env-default:"256"`
}

type RateLimit struct {
	PerMinute int  `yaml:"per_minute" env-default:"5"`
	Burst     int  `yaml:"burst" env-default:"3"`
	// TrustProxy keys the limiter on X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy" env-default:"false"`
}

type Cors struct {
	AllowedOrigins []string `yaml:"allowed_origins" env-default:"*"`
}

type Telegram struct {
	Enabled           bool    `yaml:"enabled" env-default:"false"`
	ApiKey            string  `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	AdminIDs          []int64 `yaml:"admin_ids"`
	MinLevel          string  `yaml:"min_level" env-default:"warn"`
	DigestIntervalMin int     `yaml:"digest_interval_min" env-default:"10"`
}

type Mongo struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env-default:""`
	Database string `yaml:"database" env-default:"reequte"`
}

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-default:"local"`
	Listen       Listen       `yaml:"listen"`
	Discord      Discord      `yaml:"discord"`
	Verification Verification `yaml:"verification"`
	RateLimit    RateLimit    `yaml:"rate_limit"`
	Cors         Cors         `yaml:"cors"`
	Telegram     Telegram     `yaml:"telegram"`
	Mongo        Mongo        `yaml:"mongo"`
}

func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.Verification.CodeTTLMin) * time.Minute
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Verification.SweepIntervalSec) * time.Second
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Discord.ConfirmTimeoutSec) * time.Second
}

func (c *Config) DigestInterval() time.Duration {
	return time.Duration(c.Telegram.DigestIntervalMin) * time.Minute
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	var err error
	once.Do(func() {
		instance, err = Load(path)
		if err != nil {
			log.Fatal(err)
		}
	})
	return instance
}

// Load reads path and applies environment overrides.
func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if conf.Discord.Token == "" {
		return nil, fmt.Errorf("config: discord token is required")
	}
	return conf, nil
}
