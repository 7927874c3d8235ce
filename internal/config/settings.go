package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// settingsFile is the parsed YAML structure for the optional settings file.
// Every field mirrors an environment variable; set fields replace defaults and
// are themselves replaced by the environment.
type settingsFile struct {
	PollInterval        time.Duration `yaml:"poll_interval,omitempty"`
	NetworksPath        string        `yaml:"networks_path,omitempty"`
	StatePath           string        `yaml:"state_path,omitempty"`
	PidPath             string        `yaml:"pid_path,omitempty"`
	Interface           string        `yaml:"interface,omitempty"`
	ProbeURL            string        `yaml:"probe_url,omitempty"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout,omitempty"`
	ProbeConnectTimeout time.Duration `yaml:"probe_connect_timeout,omitempty"`
	LogFile             string        `yaml:"log_file,omitempty"`
	LogLevel            string        `yaml:"log_level,omitempty"`
	SlackWebhookURL     string        `yaml:"slack_webhook_url,omitempty"`
	WebhookURL          string        `yaml:"webhook_url,omitempty"`
	MetricsTextfile     string        `yaml:"metrics_textfile,omitempty"`
}

func applySettingsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	var sf settingsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}

	if sf.PollInterval < 0 || sf.ProbeTimeout < 0 || sf.ProbeConnectTimeout < 0 {
		return fmt.Errorf("settings file %s: intervals cannot be negative", path)
	}

	if sf.PollInterval > 0 {
		cfg.PollInterval = sf.PollInterval
	}
	if sf.ProbeTimeout > 0 {
		cfg.ProbeTimeout = sf.ProbeTimeout
	}
	if sf.ProbeConnectTimeout > 0 {
		cfg.ProbeConnectTimeout = sf.ProbeConnectTimeout
	}

	overrides := []struct {
		value  string
		target *string
	}{
		{sf.NetworksPath, &cfg.NetworksPath},
		{sf.StatePath, &cfg.StatePath},
		{sf.PidPath, &cfg.PidPath},
		{sf.Interface, &cfg.Interface},
		{sf.ProbeURL, &cfg.ProbeURL},
		{sf.LogFile, &cfg.LogFile},
		{sf.LogLevel, &cfg.LogLevel},
		{sf.SlackWebhookURL, &cfg.SlackWebhookURL},
		{sf.WebhookURL, &cfg.WebhookURL},
		{sf.MetricsTextfile, &cfg.MetricsTextfile},
	}
	for _, o := range overrides {
		if o.value != "" {
			*o.target = o.value
		}
	}
	return nil
}
