package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	zpark "github.com/knightjoel/zpark"
	"github.com/knightjoel/zpark/core"
	"github.com/knightjoel/zpark/migrations"
	sqlstore "github.com/knightjoel/zpark/store/sql"
	"github.com/knightjoel/zpark/webhooks"
)

func main() {
	logger := newLogger()
	if err := newRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRoot(logger core.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "zpark",
		Short:         "Zpark bridges a Zabbix backend into a Spark chat space",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newWebhooksCommand(logger))
	root.AddCommand(newRoomsCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger core.Logger) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, alert, and ping API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts := []zpark.Option{zpark.WithLogger(logger)}

			ledger, closeLedger, err := buildLedger(ctx, logger)
			if err != nil {
				return err
			}
			if closeLedger != nil {
				defer closeLedger()
			}
			if ledger != nil {
				opts = append(opts, zpark.WithDeliveryLedger(ledger))
			}

			bot, err := zpark.Setup(ctx, append(opts, zpark.WithConfigProvider(envConfigProvider()))...)
			if err != nil {
				return err
			}
			if err := bot.Start(ctx); err != nil {
				return err
			}
			defer bot.Stop()

			server := &http.Server{
				Addr:              listenAddr,
				Handler:           bot.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", listenAddr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", envOr("ZPARK_LISTEN", ":5100"), "listen address")
	return cmd
}

func newWebhooksCommand(logger core.Logger) *cobra.Command {
	webhooksCmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Manage platform-side webhook registrations",
	}

	webhooksCmd.AddCommand(&cobra.Command{
		Use:   "create <target-url>",
		Short: "Register a messages/created webhook pointing at the bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := buildBot(cmd.Context(), logger)
			if err != nil {
				return err
			}
			hook, err := bot.RegisterWebhook(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("created webhook %s -> %s\n", hook.ID, hook.TargetURL)
			return nil
		},
	})

	webhooksCmd.AddCommand(&cobra.Command{
		Use:   "delete <webhook-id>",
		Short: "Delete a webhook registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := buildBot(cmd.Context(), logger)
			if err != nil {
				return err
			}
			if err := bot.Spark().DeleteWebhook(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("deleted webhook %s\n", args[0])
			return nil
		},
	})

	webhooksCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List webhook registrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := buildBot(cmd.Context(), logger)
			if err != nil {
				return err
			}
			hooks, err := bot.Spark().ListWebhooks(cmd.Context())
			if err != nil {
				return err
			}
			for _, hook := range hooks {
				cmd.Printf("%s\t%s\t%s/%s\t%s\n", hook.ID, hook.Name, hook.Resource, hook.Event, hook.TargetURL)
			}
			return nil
		},
	})

	return webhooksCmd
}

func newRoomsCommand(logger core.Logger) *cobra.Command {
	roomsCmd := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect chat rooms the bot belongs to",
	}

	roomsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rooms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := buildBot(cmd.Context(), logger)
			if err != nil {
				return err
			}
			rooms, err := bot.Spark().ListRooms(cmd.Context())
			if err != nil {
				return err
			}
			for _, room := range rooms {
				cmd.Printf("%s\t%s\t%s\n", room.ID, room.Type, room.Title)
			}
			return nil
		},
	})

	return roomsCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the zpark version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(zpark.Version)
		},
	}
}

func buildBot(ctx context.Context, logger core.Logger) (*zpark.Bot, error) {
	return zpark.Setup(ctx,
		zpark.WithLogger(logger),
		zpark.WithConfigProvider(envConfigProvider()),
	)
}

// buildLedger opens the durable dedupe store when ZPARK_DB_DRIVER is
// set; without it the bot falls back to the in-memory ledger.
func buildLedger(ctx context.Context, logger core.Logger) (webhooks.DeliveryLedger, func(), error) {
	driver := strings.TrimSpace(os.Getenv("ZPARK_DB_DRIVER"))
	if driver == "" {
		return nil, nil, nil
	}
	dsn := strings.TrimSpace(os.Getenv("ZPARK_DB_DSN"))
	if dsn == "" {
		return nil, nil, fmt.Errorf("ZPARK_DB_DSN is required when ZPARK_DB_DRIVER is set")
	}

	var dialect schema.Dialect
	var migrationTarget string
	switch driver {
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationTarget = migrations.DialectSQLite
	case "postgres":
		dialect = pgdialect.New()
		migrationTarget = migrations.DialectPostgres
	default:
		return nil, nil, fmt.Errorf("unsupported ZPARK_DB_DRIVER %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("persistence client: %w", err)
	}
	cleanup := func() { _ = client.Close() }

	_, err = migrations.Register(ctx, func(_ context.Context, d string, _ string, fsys fs.FS) error {
		if d != migrationTarget {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationTarget))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Info("durable delivery ledger enabled", "driver", driver)
	return store, cleanup, nil
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "zpark" }

func envConfigProvider() core.ConfigProvider {
	return core.NewCfgxConfigProvider(core.StaticConfigLoader(envConfigValues()))
}

// envConfigValues maps ZPARK_* environment variables onto the layered
// config shape.
func envConfigValues() map[string]any {
	values := map[string]any{}
	setString := func(key, env string) {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			values[key] = value
		}
	}
	setString("api_token", "ZPARK_API_TOKEN")
	setString("contact_info", "ZPARK_CONTACT_INFO")
	setString("bot_name", "ZPARK_BOT_NAME")

	if raw := strings.TrimSpace(os.Getenv("ZPARK_TRUSTED_USERS")); raw != "" {
		entries := strings.Split(raw, ",")
		trusted := make([]string, 0, len(entries))
		for _, entry := range entries {
			trusted = append(trusted, strings.TrimSpace(entry))
		}
		values["trusted_users"] = trusted
	}
	if raw := strings.TrimSpace(os.Getenv("ZPARK_WORKERS")); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			values["workers"] = workers
		}
	}

	spark := map[string]any{}
	if value := strings.TrimSpace(os.Getenv("ZPARK_SPARK_API_URL")); value != "" {
		spark["api_url"] = value
	}
	if value := strings.TrimSpace(os.Getenv("ZPARK_SPARK_ACCESS_TOKEN")); value != "" {
		spark["access_token"] = value
	}
	if value := strings.TrimSpace(os.Getenv("ZPARK_SPARK_WEBHOOK_SECRET")); value != "" {
		spark["webhook_secret"] = value
	}
	if len(spark) > 0 {
		values["spark"] = spark
	}

	zabbix := map[string]any{}
	if value := strings.TrimSpace(os.Getenv("ZPARK_ZABBIX_SERVER_URL")); value != "" {
		zabbix["server_url"] = value
	}
	if value := strings.TrimSpace(os.Getenv("ZPARK_ZABBIX_USERNAME")); value != "" {
		zabbix["username"] = value
	}
	if value := strings.TrimSpace(os.Getenv("ZPARK_ZABBIX_PASSWORD")); value != "" {
		zabbix["password"] = value
	}
	if len(zabbix) > 0 {
		values["zabbix"] = zabbix
	}

	return values
}

func envOr(env, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(env)); value != "" {
		return value
	}
	return fallback
}

func newLogger() core.Logger {
	return &slogLogger{inner: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// slogLogger satisfies the glog contract over a std slog logger.
type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) Trace(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.inner.Error(msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(context.Context) glog.Logger {
	return l
}

var _ glog.Logger = (*slogLogger)(nil)
