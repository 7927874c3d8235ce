package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPollInterval    = "WS_POLL_INTERVAL"
	envNetworksPath    = "WS_NETWORKS_PATH"
	envStatePath       = "WS_STATE_PATH"
	envPidPath         = "WS_PID_PATH"
	envInterface       = "WS_INTERFACE"
	envProbeURL        = "WS_PROBE_URL"
	envProbeTimeout    = "WS_PROBE_TIMEOUT"
	envConnectTimeout  = "WS_PROBE_CONNECT_TIMEOUT"
	envLogFile         = "WS_LOG_FILE"
	envLogLevel        = "WS_LOG_LEVEL"
	envSlackWebhookURL = "WS_SLACK_WEBHOOK_URL"
	envWebhookURL      = "WS_WEBHOOK_URL"
	envMetricsTextfile = "WS_METRICS_TEXTFILE"
	envSettingsFile    = "WS_SETTINGS_FILE"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultNetworksPath   = "/etc/wifi-sentinel/config.toml"
	defaultStatePath      = "/var/lib/wifi-sentinel/state"
	defaultPidPath        = "/run/wifi-sentinel.pid"
	defaultProbeURL       = "http://connectivity-check.gstatic.com/generate_204"
	defaultProbeTimeout   = 10 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultLogFile        = "/var/log/wifi-sentinel.log"
	defaultLogLevel       = "info"
)

// Config describes runtime configuration loaded from the environment,
// optionally backed by a YAML settings file.
type Config struct {
	PollInterval        time.Duration
	NetworksPath        string
	StatePath           string
	PidPath             string
	Interface           string
	ProbeURL            string
	ProbeTimeout        time.Duration
	ProbeConnectTimeout time.Duration
	LogFile             string
	LogLevel            string
	SlackWebhookURL     string
	WebhookURL          string
	MetricsTextfile     string
}

// Load reads configuration from environment variables and a local .env file if
// present. Environment variables win over the settings file, which wins over
// defaults.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		PollInterval:        defaultPollInterval,
		NetworksPath:        defaultNetworksPath,
		StatePath:           defaultStatePath,
		PidPath:             defaultPidPath,
		ProbeURL:            defaultProbeURL,
		ProbeTimeout:        defaultProbeTimeout,
		ProbeConnectTimeout: defaultConnectTimeout,
		LogFile:             defaultLogFile,
		LogLevel:            defaultLogLevel,
	}

	if path, ok := lookupTrimmed(envSettingsFile); ok && path != "" {
		if err := applySettingsFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if value, ok := lookupTrimmed(envPollInterval); ok {
		interval, err := parseInterval(value, envPollInterval)
		if err != nil {
			return err
		}
		cfg.PollInterval = interval
	}
	if value, ok := lookupTrimmed(envProbeTimeout); ok {
		timeout, err := parseInterval(value, envProbeTimeout)
		if err != nil {
			return err
		}
		cfg.ProbeTimeout = timeout
	}
	if value, ok := lookupTrimmed(envConnectTimeout); ok {
		timeout, err := parseInterval(value, envConnectTimeout)
		if err != nil {
			return err
		}
		cfg.ProbeConnectTimeout = timeout
	}

	stringVars := []struct {
		env    string
		target *string
	}{
		{envNetworksPath, &cfg.NetworksPath},
		{envStatePath, &cfg.StatePath},
		{envPidPath, &cfg.PidPath},
		{envInterface, &cfg.Interface},
		{envProbeURL, &cfg.ProbeURL},
		{envLogFile, &cfg.LogFile},
		{envLogLevel, &cfg.LogLevel},
		{envSlackWebhookURL, &cfg.SlackWebhookURL},
		{envWebhookURL, &cfg.WebhookURL},
		{envMetricsTextfile, &cfg.MetricsTextfile},
	}
	for _, v := range stringVars {
		if value, ok := lookupTrimmed(v.env); ok {
			*v.target = value
		}
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.NetworksPath == "" {
		return errors.New("networks config path must not be empty")
	}
	if cfg.StatePath == "" {
		return errors.New("state path must not be empty")
	}
	if err := validateURL(cfg.ProbeURL, "probe URL"); err != nil {
		return err
	}
	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, "slack webhook URL"); err != nil {
			return err
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, "webhook URL"); err != nil {
			return err
		}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}

func parseInterval(value, name string) (time.Duration, error) {
	interval, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}
	return interval, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
