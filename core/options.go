package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader exposes a fixed raw-value map, mostly for tests
// and the CLI where values arrive from flags.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.BotName) != "" {
		layer["bot_name"] = cfg.BotName
	}
	if includeZero || strings.TrimSpace(cfg.APIToken) != "" {
		layer["api_token"] = cfg.APIToken
	}
	if includeZero || strings.TrimSpace(cfg.ContactInfo) != "" {
		layer["contact_info"] = cfg.ContactInfo
	}
	if includeZero || len(cfg.TrustedUsers) > 0 {
		layer["trusted_users"] = append([]string(nil), cfg.TrustedUsers...)
	}
	if includeZero || cfg.Workers > 0 {
		layer["workers"] = cfg.Workers
	}

	spark := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Spark.APIURL) != "" {
		spark["api_url"] = cfg.Spark.APIURL
	}
	if includeZero || strings.TrimSpace(cfg.Spark.AccessToken) != "" {
		spark["access_token"] = cfg.Spark.AccessToken
	}
	if includeZero || strings.TrimSpace(cfg.Spark.WebhookSecret) != "" {
		spark["webhook_secret"] = cfg.Spark.WebhookSecret
	}
	if len(spark) > 0 {
		layer["spark"] = spark
	}

	zabbix := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Zabbix.ServerURL) != "" {
		zabbix["server_url"] = cfg.Zabbix.ServerURL
	}
	if includeZero || strings.TrimSpace(cfg.Zabbix.Username) != "" {
		zabbix["username"] = cfg.Zabbix.Username
	}
	if includeZero || strings.TrimSpace(cfg.Zabbix.Password) != "" {
		zabbix["password"] = cfg.Zabbix.Password
	}
	if len(zabbix) > 0 {
		layer["zabbix"] = zabbix
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.Report != (RetryClassConfig{}) {
		retry["report"] = retryClassToMap(cfg.Retry.Report)
	}
	if includeZero || cfg.Retry.Message != (RetryClassConfig{}) {
		retry["message"] = retryClassToMap(cfg.Retry.Message)
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	return layer
}

func retryClassToMap(cfg RetryClassConfig) map[string]any {
	return map[string]any{
		"base_delay":   cfg.BaseDelay,
		"max_delay":    cfg.MaxDelay,
		"max_attempts": cfg.MaxAttempts,
	}
}
