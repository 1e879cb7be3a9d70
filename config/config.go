package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/skylocker/redact"
)

type Config struct {
	Log    Log    `yaml:"log"`
	Locker Locker `yaml:"locker"`
}

func (c *Config) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Dict("log", c.Log.ToDict()).
		Dict("locker", c.Locker.ToDict())
}

func (c *Config) setDefaults() {
	c.Log.setDefaults()
	c.Locker.setDefaults()
}

func (c *Config) validate() error {
	if err := c.Log.validate(); nil != err {
		return fmt.Errorf("log config validation failed: %v", err)
	}

	if err := c.Locker.validate(); nil != err {
		return fmt.Errorf("locker config validation failed: %v", err)
	}

	return nil
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Log) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("level", c.Level).
		Str("format", c.Format)
}

func (c *Log) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}

	if c.Format == "" {
		c.Format = "auto"
	}
}

func (c *Log) validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error", "fatal", "panic"}, c.Level) {
		return fmt.Errorf(
			"level must be one of: debug, info, warn, error, fatal, panic, got: %s",
			c.Level,
		)
	}

	if !slices.Contains([]string{"auto", "json", "pretty"}, c.Format) {
		return fmt.Errorf("format must be 'auto', 'json', or 'pretty', got: %s", c.Format)
	}

	return nil
}

type Locker struct {
	ClientID          string   `yaml:"-"`
	ClientSecret      string   `yaml:"-"`
	CredsPath         string   `yaml:"creds_path"`
	DeviceName        string   `yaml:"device_name"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Timeouts          Timeouts `yaml:"timeouts"`
}

func (c *Locker) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("client_id", redact.String(c.ClientID)).
		Str("client_secret", redact.String(c.ClientSecret)).
		Str("creds_path", c.CredsPath).
		Str("device_name", c.DeviceName).
		Float64("requests_per_second", c.RequestsPerSecond).
		Dict("timeouts", c.Timeouts.ToDict())
}

func (c *Locker) setDefaults() {
	if c.CredsPath == "" {
		c.CredsPath = "./creds.db"
	}

	if c.DeviceName == "" {
		hostname, err := os.Hostname()
		if nil != err {
			hostname = "skylocker"
		}
		c.DeviceName = hostname
	}

	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 5
	}

	c.Timeouts.setDefaults()
}

func (c *Locker) validate() error {
	if c.ClientID == "" {
		return errors.New("make sure the LOCKER_CLIENT_ID environment variable is set")
	}

	if c.ClientSecret == "" {
		return errors.New("make sure the LOCKER_CLIENT_SECRET environment variable is set")
	}

	if c.RequestsPerSecond <= 0 {
		return errors.New("requests_per_second must be positive")
	}

	if err := c.Timeouts.validate(); nil != err {
		return fmt.Errorf("timeouts config validation failed: %v", err)
	}

	return nil
}

type Timeouts struct {
	RenewToken      int `yaml:"renew_token"`
	FetchPage       int `yaml:"fetch_page"`
	SubmitMutations int `yaml:"submit_mutations"`
	AuthorizeDevice int `yaml:"authorize_device"`
	SubmitMetadata  int `yaml:"submit_metadata"`
	MatchSamples    int `yaml:"match_samples"`
	CreateSession   int `yaml:"create_session"`
	TransferTrack   int `yaml:"transfer_track"`
}

func (c *Timeouts) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Int("renew_token", c.RenewToken).
		Int("fetch_page", c.FetchPage).
		Int("submit_mutations", c.SubmitMutations).
		Int("authorize_device", c.AuthorizeDevice).
		Int("submit_metadata", c.SubmitMetadata).
		Int("match_samples", c.MatchSamples).
		Int("create_session", c.CreateSession).
		Int("transfer_track", c.TransferTrack)
}

func (c *Timeouts) setDefaults() {
	if c.RenewToken == 0 {
		c.RenewToken = 5
	}

	if c.FetchPage == 0 {
		c.FetchPage = 30
	}

	if c.SubmitMutations == 0 {
		c.SubmitMutations = 30
	}

	if c.AuthorizeDevice == 0 {
		c.AuthorizeDevice = 10
	}

	if c.SubmitMetadata == 0 {
		c.SubmitMetadata = 30
	}

	if c.MatchSamples == 0 {
		c.MatchSamples = 30
	}

	if c.CreateSession == 0 {
		c.CreateSession = 10
	}

	if c.TransferTrack == 0 {
		c.TransferTrack = 600
	}
}

func (c *Timeouts) validate() error {
	for _, v := range []int{
		c.RenewToken,
		c.FetchPage,
		c.SubmitMutations,
		c.AuthorizeDevice,
		c.SubmitMetadata,
		c.MatchSamples,
		c.CreateSession,
		c.TransferTrack,
	} {
		if v < 0 {
			return errors.New("timeouts must be non-negative")
		}
	}

	return nil
}

func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); nil != err && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %v", err)
	}

	data, err := os.ReadFile(lo.Ternary(len(filename) > 0, filename, "config.yaml"))
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	var conf Config
	if err := yaml.Unmarshal(data, &conf); nil != err {
		return nil, fmt.Errorf("failed to parse config file %s: %v", filename, err)
	}

	conf.Locker.ClientID = os.Getenv("LOCKER_CLIENT_ID")
	conf.Locker.ClientSecret = os.Getenv("LOCKER_CLIENT_SECRET")
	conf.setDefaults()

	if err := conf.validate(); nil != err {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return &conf, nil
}
