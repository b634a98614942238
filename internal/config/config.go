package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Log struct {
	Level  string
	Format string
}

type Client struct {
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Upstream struct {
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type Cache struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SnapshotPath  string        `yaml:"snapshot_path"`
}

type Config struct {
	Listen          string
	Origin          string
	AdminInterface  string `yaml:"admin_interface"`
	EnableMetrics   bool   `yaml:"metrics"`
	EnableProfiling bool   `yaml:"profiling"`
	Log             Log
	Client          Client
	Upstream        Upstream
	Cache           Cache
}

func getBaseConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8081",
		Origin:         "127.0.0.1:8080",
		AdminInterface: "localhost:8082",
		EnableMetrics:  true,
		Log:            Log{zerolog.LevelInfoValue, "json"},
		Client:         Client{ReadTimeout: 10 * time.Second, WriteTimeout: time.Minute},
		Upstream: Upstream{
			Timeout:    30 * time.Second,
			Attempts:   1,
			RetryDelay: 100 * time.Millisecond,
		},
		Cache: Cache{SweepInterval: 5 * time.Second},
	}
}

func Parse(configPath string, lookupEnv func(string) (string, bool)) (*Config, error) {
	c := getBaseConfig()

	fp, err := os.Open(configPath) //nolint:gosec
	if err != nil {
		return c, err
	}
	defer fp.Close() //nolint:errcheck

	decoder := yaml.NewDecoder(fp)
	decoder.KnownFields(true)
	// An empty file keeps every default
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return c, err
	}

	applyOverrides(c, lookupEnv)
	return c, c.Validate()
}

func Default(lookupEnv func(string) (string, bool)) *Config {
	conf := getBaseConfig()
	applyOverrides(conf, lookupEnv)
	return conf
}

func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address must be set"))
	}
	if c.Origin == "" {
		errs = append(errs, errors.New("origin address must be set"))
	}
	if c.Upstream.Attempts == 0 {
		errs = append(errs, errors.New("upstream.attempts must be at least 1"))
	}

	for name, value := range map[string]time.Duration{
		"client.read_timeout":  c.Client.ReadTimeout,
		"client.write_timeout": c.Client.WriteTimeout,
		"upstream.timeout":     c.Upstream.Timeout,
		"upstream.retry_delay": c.Upstream.RetryDelay,
		"cache.sweep_interval": c.Cache.SweepInterval,
	} {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, value))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func applyOverrides(conf *Config, lookupEnv func(string) (string, bool)) {
	if val, ok := lookupEnv("CACHEPROXY_ENABLE_PROFILING"); ok && val == "1" {
		conf.EnableProfiling = true
	}

	if val, ok := lookupEnv("CACHEPROXY_LOG_LEVEL"); ok {
		conf.Log.Level = val
	}

	if val, ok := lookupEnv("CACHEPROXY_LOG_FORMAT"); ok {
		conf.Log.Format = val
	}

	if val, ok := lookupEnv("CACHEPROXY_LISTEN"); ok {
		conf.Listen = val
	}

	if val, ok := lookupEnv("CACHEPROXY_ORIGIN"); ok {
		conf.Origin = val
	}

	if val, ok := lookupEnv("CACHEPROXY_ADMIN_INTERFACE"); ok {
		conf.AdminInterface = val
	}

	if val, ok := lookupEnv("CACHEPROXY_SNAPSHOT_PATH"); ok {
		conf.Cache.SnapshotPath = val
	}
}
