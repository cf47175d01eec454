// Package zpark wires the chat-ops bridge together: webhook intake,
// trusted-sender checks, command dispatch, the retrying executor, and
// the chat and monitoring backend clients.
package zpark

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jobqueue "github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/knightjoel/zpark/adapters/gojob"
	"github.com/knightjoel/zpark/commands"
	"github.com/knightjoel/zpark/core"
	"github.com/knightjoel/zpark/identity"
	"github.com/knightjoel/zpark/spark"
	"github.com/knightjoel/zpark/tasks"
	"github.com/knightjoel/zpark/transport"
	"github.com/knightjoel/zpark/trust"
	"github.com/knightjoel/zpark/webhooks"
	"github.com/knightjoel/zpark/zabbix"
)

// Version is stamped at build time.
var Version = "dev"

type botOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	ledger         webhooks.DeliveryLedger
	sparkClient    *spark.Client
	zabbixClient   *zabbix.Client
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
	runtime        core.Config
	jobEnqueuer    jobqueue.Enqueuer
	jobDequeuer    jobqueue.Dequeuer
}

type Option func(*botOptions)

func WithLogger(logger core.Logger) Option {
	return func(o *botOptions) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *botOptions) { o.loggerProvider = provider }
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(o *botOptions) { o.metrics = metrics }
}

// WithDeliveryLedger swaps the in-memory dedupe ledger for a durable
// one, normally the bun-backed store.
func WithDeliveryLedger(ledger webhooks.DeliveryLedger) Option {
	return func(o *botOptions) { o.ledger = ledger }
}

func WithSparkClient(client *spark.Client) Option {
	return func(o *botOptions) { o.sparkClient = client }
}

func WithZabbixClient(client *zabbix.Client) Option {
	return func(o *botOptions) { o.zabbixClient = client }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *botOptions) { o.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *botOptions) { o.resolver = resolver }
}

// WithRuntimeConfig layers highest-precedence values over whatever the
// config provider loads.
func WithRuntimeConfig(cfg core.Config) Option {
	return func(o *botOptions) { o.runtime = cfg }
}

// WithJobQueue routes task execution through an externally built
// go-job queue instead of the executor's in-memory one. Retry delays
// then ride on the nack options, bounded by the retry configuration.
func WithJobQueue(enqueuer jobqueue.Enqueuer, dequeuer jobqueue.Dequeuer) Option {
	return func(o *botOptions) {
		o.jobEnqueuer = enqueuer
		o.jobDequeuer = dequeuer
	}
}

// Bot is the assembled bridge. Construct with New or Setup, Start it,
// mount Handler on an HTTP server, Stop on shutdown.
type Bot struct {
	cfg     core.Config
	logger  core.Logger
	metrics core.MetricsRecorder

	spark    *spark.Client
	zabbix   *zabbix.Client
	people   *identity.CachedResolver
	executor *tasks.Executor
	ledger   webhooks.DeliveryLedger

	processor *webhooks.Processor
	api       *transport.API

	me core.Person
}

// Setup resolves configuration through the provider/resolver chain and
// builds the bot, the way callers with layered config sources use it.
func Setup(ctx context.Context, opts ...Option) (*Bot, error) {
	options := collectOptions(opts)
	defaults := core.DefaultConfig()

	provider := options.configProvider
	if provider == nil {
		provider = core.NewCfgxConfigProvider(nil)
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("zpark: load config: %w", err)
	}

	resolver := options.resolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	resolved, err := resolver.Resolve(defaults, loaded, options.runtime)
	if err != nil {
		return nil, fmt.Errorf("zpark: resolve config: %w", err)
	}

	return New(resolved, opts...)
}

// New builds the bot from an already-resolved config.
func New(cfg core.Config, opts ...Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := collectOptions(opts)

	_, logger := glog.Resolve(cfg.ServiceName, options.loggerProvider, options.logger)
	metrics := options.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	sparkClient := options.sparkClient
	if sparkClient == nil {
		client, err := spark.NewClient(spark.Config{
			APIURL:      cfg.Spark.APIURL,
			AccessToken: cfg.Spark.AccessToken,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		sparkClient = client
	}

	zabbixClient := options.zabbixClient
	if zabbixClient == nil {
		client, err := zabbix.NewClient(zabbix.Config{
			ServerURL: cfg.Zabbix.ServerURL,
			Username:  cfg.Zabbix.Username,
			Password:  cfg.Zabbix.Password,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		zabbixClient = client
	}

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("zpark: build person cache: %w", err)
	}
	people, err := identity.NewCachedResolver(sparkClient, cacheService)
	if err != nil {
		return nil, err
	}

	notifier := tasks.NewChatFailureNotifier(sparkClient, logger)
	executorOptions := []tasks.Option{
		tasks.WithLogger(logger),
		tasks.WithMetrics(metrics),
	}
	if options.jobEnqueuer != nil && options.jobDequeuer != nil {
		policy := gojob.RetryPolicy{
			MaxAttempts:     maxRetryAttempts(cfg.Retry),
			MaxDelay:        maxRetryDelay(cfg.Retry),
			DeadLetterOnMax: true,
		}
		executorOptions = append(executorOptions, tasks.WithQueue(
			gojob.NewEnqueuerAdapter(options.jobEnqueuer),
			gojob.NewDequeuerAdapter(options.jobDequeuer, policy),
		))
	}
	executor := tasks.NewExecutor(cfg.Retry, cfg.Workers, notifier, executorOptions...)

	table, err := commands.NewDefaultTable(sparkClient, zabbixClient, Version, cfg.ContactInfo)
	if err != nil {
		return nil, err
	}
	dispatcher := commands.NewDispatcher(table, executor, logger)

	ledger := options.ledger
	if ledger == nil {
		ledger = webhooks.NewMemoryLedger()
	}

	processor := &webhooks.Processor{
		Verifier:   webhooks.SignatureVerifier{Secret: cfg.Spark.WebhookSecret},
		Ledger:     ledger,
		Messages:   sparkClient,
		Rooms:      sparkClient,
		People:     people,
		Trust:      trust.NewList(cfg.TrustedUsers),
		Extractor:  commands.NewExtractor(logger),
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	}

	bot := &Bot{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		spark:     sparkClient,
		zabbix:    zabbixClient,
		people:    people,
		executor:  executor,
		ledger:    ledger,
		processor: processor,
	}
	bot.api = &transport.API{
		Processor:     processor,
		AlertVerifier: webhooks.TokenVerifier{Token: cfg.APIToken},
		Messenger:     sparkClient,
		Tasks:         executor,
		Version:       Version,
		Logger:        logger,
		Metrics:       metrics,
	}
	return bot, nil
}

func maxRetryAttempts(cfg core.RetryConfig) int {
	attempts := cfg.Report.MaxAttempts
	if cfg.Message.MaxAttempts > attempts {
		attempts = cfg.Message.MaxAttempts
	}
	return attempts
}

func maxRetryDelay(cfg core.RetryConfig) time.Duration {
	delay := cfg.Report.MaxDelay
	if cfg.Message.MaxDelay > delay {
		delay = cfg.Message.MaxDelay
	}
	return delay
}

func collectOptions(opts []Option) botOptions {
	options := botOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}
	return options
}

// Start resolves the bot's own identity and spins up the executor
// workers. The identity gate keeps the bot from answering itself.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil {
		return fmt.Errorf("zpark: bot is nil")
	}
	me, err := b.spark.Me(ctx)
	if err != nil {
		return fmt.Errorf("zpark: resolve bot identity: %w", err)
	}
	b.me = me
	b.processor.BotPersonID = me.ID

	if !b.processor.Verifier.Enabled() {
		b.logger.Warn("webhook signature verification is disabled; set spark.webhook_secret")
	}
	if strings.TrimSpace(b.cfg.APIToken) == "" {
		b.logger.Warn("alert api token is unset; all alert requests will be rejected")
	}

	if err := b.executor.Start(ctx); err != nil {
		return err
	}
	b.logger.Info("zpark started",
		"bot", me.DisplayName,
		"version", Version,
		"workers", b.cfg.Workers,
	)
	return nil
}

// Stop drains the executor workers.
func (b *Bot) Stop() {
	if b == nil || b.executor == nil {
		return
	}
	b.executor.Stop()
	b.logger.Info("zpark stopped")
}

// Handler is the REST edge: /api/v1/webhook, /api/v1/alert,
// /api/v1/ping.
func (b *Bot) Handler() http.Handler {
	if b == nil || b.api == nil {
		return http.NotFoundHandler()
	}
	return b.api.Handler()
}

// Me returns the bot's own chat identity, available after Start.
func (b *Bot) Me() core.Person {
	if b == nil {
		return core.Person{}
	}
	return b.me
}

// Spark exposes the chat client for management commands.
func (b *Bot) Spark() *spark.Client {
	if b == nil {
		return nil
	}
	return b.spark
}

// Zabbix exposes the monitoring client.
func (b *Bot) Zabbix() *zabbix.Client {
	if b == nil {
		return nil
	}
	return b.zabbix
}

// RegisterWebhook creates the platform-side webhook pointing chat
// message events at targetURL, named after the bot.
func (b *Bot) RegisterWebhook(ctx context.Context, targetURL string) (spark.Webhook, error) {
	if b == nil || b.spark == nil {
		return spark.Webhook{}, fmt.Errorf("zpark: spark client is not configured")
	}
	name := strings.TrimSpace(b.cfg.BotName)
	if name == "" {
		name = "Zpark"
	}
	return b.spark.CreateWebhook(ctx, spark.Webhook{
		Name:      name + " webhook",
		TargetURL: strings.TrimSpace(targetURL),
		Secret:    b.cfg.Spark.WebhookSecret,
	})
}
