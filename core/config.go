package core

import (
	"fmt"
	"strings"
	"time"
)

type SparkConfig struct {
	APIURL        string `koanf:"api_url" mapstructure:"api_url"`
	AccessToken   string `koanf:"access_token" mapstructure:"access_token"`
	WebhookSecret string `koanf:"webhook_secret" mapstructure:"webhook_secret"`
}

type ZabbixConfig struct {
	ServerURL string `koanf:"server_url" mapstructure:"server_url"`
	Username  string `koanf:"username" mapstructure:"username"`
	Password  string `koanf:"password" mapstructure:"password"`
}

type RetryClassConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

func (c RetryClassConfig) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("core: retry base_delay must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("core: retry max_delay must be >= base_delay")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("core: retry max_attempts must be at least 1")
	}
	return nil
}

type RetryConfig struct {
	// Report covers the short monitoring-report commands; Message
	// covers chat message delivery.
	Report  RetryClassConfig `koanf:"report" mapstructure:"report"`
	Message RetryClassConfig `koanf:"message" mapstructure:"message"`
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	BotName     string `koanf:"bot_name" mapstructure:"bot_name"`
	// APIToken authenticates callers of the alert API. Unset keeps
	// every alert request rejected, the safe default.
	APIToken    string `koanf:"api_token" mapstructure:"api_token"`
	ContactInfo string `koanf:"contact_info" mapstructure:"contact_info"`
	// TrustedUsers lists emails and @domain suffixes permitted to
	// issue commands. An empty list disables the check entirely; the
	// default single blank entry keeps all senders untrusted until
	// the operator opts in.
	TrustedUsers []string     `koanf:"trusted_users" mapstructure:"trusted_users"`
	Workers      int          `koanf:"workers" mapstructure:"workers"`
	Spark        SparkConfig  `koanf:"spark" mapstructure:"spark"`
	Zabbix       ZabbixConfig `koanf:"zabbix" mapstructure:"zabbix"`
	Retry        RetryConfig  `koanf:"retry" mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:  "zpark",
		BotName:      "Zpark",
		TrustedUsers: []string{""},
		Workers:      4,
		Spark: SparkConfig{
			APIURL: "https://api.ciscospark.com/v1",
		},
		Zabbix: ZabbixConfig{
			ServerURL: "http://localhost/zabbix",
		},
		Retry: RetryConfig{
			Report: RetryClassConfig{
				BaseDelay:   15 * time.Second,
				MaxDelay:    2 * time.Minute,
				MaxAttempts: 3,
			},
			Message: RetryClassConfig{
				BaseDelay:   20 * time.Second,
				MaxDelay:    time.Minute,
				MaxAttempts: 3,
			},
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("core: workers must be at least 1")
	}
	if err := c.Retry.Report.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Message.Validate(); err != nil {
		return err
	}
	return nil
}
