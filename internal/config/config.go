package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bher20/meterledger/internal/alerting"
	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/cron"
	"github.com/bher20/meterledger/internal/publisher"
)

const envPrefix = "METERLEDGER_"

type Config struct {
	Addr               string               `yaml:"addr"`
	DB                 DBConfig             `yaml:"db"`
	BillingDayOverflow string               `yaml:"billing_day_overflow"`
	Worker             WorkerConfig         `yaml:"worker"`
	MQTT               publisher.Config     `yaml:"mqtt"`
	Alerting           alerting.AlertConfig `yaml:"alerting"`
}

type DBConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type WorkerConfig struct {
	// Schedule is an interval in seconds or a standard cron expression.
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:               ":8080",
		DB:                 DBConfig{Driver: "memory", AutoMigrate: true},
		BillingDayOverflow: string(billing.OverflowRoll),
		Worker:             WorkerConfig{Schedule: cron.DefaultInterval, Concurrency: 4},
		Alerting: alerting.AlertConfig{
			MinAnomaliesBeforeAlert: 1,
			MinFailuresBeforeAlert:  1,
			Timeout:                 10 * time.Second,
		},
	}
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg.finish()
}

// Load reads a YAML file over the defaults; environment variables still take
// precedence. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg.finish()
}

// Overflow returns the configured day overflow policy.
func (c Config) Overflow() billing.DayOverflow {
	return billing.DayOverflow(c.BillingDayOverflow)
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, envPrefix+"ADDR")
	setString(&c.DB.Driver, envPrefix+"DB_DRIVER")
	setString(&c.DB.DSN, envPrefix+"DB_DSN")
	setString(&c.BillingDayOverflow, envPrefix+"BILLING_DAY_OVERFLOW")
	setString(&c.Worker.Schedule, envPrefix+"WORKER_SCHEDULE")
	setString(&c.MQTT.Broker, envPrefix+"MQTT_BROKER")
	setString(&c.MQTT.TopicPrefix, envPrefix+"MQTT_TOPIC_PREFIX")
	setString(&c.MQTT.Username, envPrefix+"MQTT_USERNAME")
	setString(&c.MQTT.Password, envPrefix+"MQTT_PASSWORD")
	setString(&c.MQTT.ClientID, envPrefix+"MQTT_CLIENT_ID")

	if err := setBool(&c.DB.AutoMigrate, envPrefix+"AUTO_MIGRATE"); err != nil {
		return err
	}
	if err := setInt(&c.Worker.Concurrency, envPrefix+"WORKER_CONCURRENCY"); err != nil {
		return err
	}
	c.Alerting = c.Alerting.ApplyEnv()
	return nil
}

func (c Config) finish() (Config, error) {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	overflow, err := billing.ParseDayOverflow(c.BillingDayOverflow)
	if err != nil {
		return Config{}, err
	}
	c.BillingDayOverflow = string(overflow)
	if err := cron.ValidateInterval(c.Worker.Schedule); err != nil {
		return Config{}, fmt.Errorf("worker schedule %q: %w", c.Worker.Schedule, err)
	}
	c.Alerting = c.Alerting.Normalize()
	return c, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
