package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/pool-integration/internal/pkg/config"
	"github.com/anicoll/pool-integration/internal/pkg/controller"
	"github.com/anicoll/pool-integration/internal/pkg/database"
	"github.com/anicoll/pool-integration/internal/pkg/database/migration"
	"github.com/anicoll/pool-integration/internal/pkg/hub"
	"github.com/anicoll/pool-integration/internal/pkg/metrics"
	"github.com/anicoll/pool-integration/internal/pkg/mqtt"
	"github.com/anicoll/pool-integration/internal/pkg/publisher"
	"github.com/anicoll/pool-integration/internal/pkg/server"
)

var (
	errCron = errors.New("cron error")
	errPoll = errors.New("poll error")
)

func PoolCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		Params:           nodeServerParams(ctx),
		PollInterval:     ctx.Duration("poll-interval"),
		LongPollInterval: ctx.Duration("long-poll-interval"),
		HTTPTimeout:      ctx.Duration("http-timeout"),
		MqttCfg: &config.MqttConfig{
			Host:        ctx.String("mqtt-host"),
			Username:    ctx.String("mqtt-user"),
			Password:    ctx.String("mqtt-pass"),
			ClientID:    ctx.String("mqtt-client-id"),
			TopicPrefix: ctx.String("mqtt-prefix"),
		},
		DatabaseCfg: &config.DatabaseConfig{
			URL:              ctx.String("database-url"),
			MigrationsFolder: ctx.String("migrations-folder"),
			Retention:        ctx.Duration("history-retention"),
		},
		ServerCfg: &config.ServerConfig{
			Addr:      ctx.String("listen-addr"),
			TokenHash: ctx.String("api-token-hash"),
		},
		LogLevel: ctx.String("log-level"),
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	return setup(ctx.Context, cfg, logger)
}

// nodeServerParams maps the flags onto the custom parameter keys the hub
// would hand a node server. Unset flags are left out.
func nodeServerParams(ctx *cli.Context) map[string]string {
	params := make(map[string]string)
	for flag, key := range map[string]string{
		"api-url":           "api_url",
		"circuits-not-used": "circuits_not_used",
		"circuit-control":   "circuit_control",
	} {
		if v := ctx.String(flag); v != "" {
			params[key] = v
		}
	}
	for flag, key := range map[string]string{
		"pool-circuit": "pool_circuit",
		"spa-circuit":  "spa_circuit",
	} {
		if v := ctx.Int(flag); v > 0 {
			params[key] = strconv.Itoa(v)
		}
	}
	return params
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// setup builds every adapter from cfg and hands them to run.
func setup(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pub := publisher.New()

	promMetrics := metrics.New()
	if err := pub.Register("metrics", promMetrics); err != nil {
		return err
	}

	var (
		cleaner DatabaseCleaner
		history *database.Database
	)
	if cfg.DatabaseCfg.URL != "" {
		if cfg.DatabaseCfg.MigrationsFolder != "" {
			if err := migration.Migrate(cfg.DatabaseCfg.URL, cfg.DatabaseCfg.MigrationsFolder); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseCfg.URL)
		if err != nil {
			return err
		}
		db := database.NewDatabase(pool)
		defer db.Close()
		if err := pub.Register("postgres", db); err != nil {
			return err
		}
		cleaner, history = db, db
	} else {
		logger.Warn("no database configured, driver history disabled")
	}

	registry := hub.New(controller.Address, pub)

	if cfg.MqttCfg.Host != "" {
		svc := mqtt.New(paho_mqtt.NewClient(mqttOptions(cfg.MqttCfg)), cfg.MqttCfg.TopicPrefix)
		if err := svc.Connect(); err != nil {
			return fmt.Errorf("connect to mqtt broker %s: %w", cfg.MqttCfg.Host, err)
		}
		if err := svc.Subscribe(ctx, registry); err != nil {
			return fmt.Errorf("subscribe to mqtt commands: %w", err)
		}
		if err := pub.Register("mqtt", svc); err != nil {
			return err
		}
	}

	ctrl := controller.New(cfg.Params, registry, cfg.HTTPTimeout)

	var handler http.Handler
	if history != nil {
		handler = server.New(registry, history, promMetrics.Handler(), cfg.ServerCfg.TokenHash)
	} else {
		handler = server.New(registry, nil, promMetrics.Handler(), cfg.ServerCfg.TokenHash)
	}

	errorChan := make(chan error, 1000)
	return run(ctx, cfg, ctrl, handler, cleaner, errorChan, logger)
}

func mqttOptions(cfg *config.MqttConfig) *paho_mqtt.ClientOptions {
	return paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(false).
		SetResumeSubs(true).
		SetAutoReconnect(true)
}

func run(ctx context.Context, cfg *config.Config, svc ControllerService, handler http.Handler, cleaner DatabaseCleaner, errorChan chan error, logger *zap.Logger) error {
	eg, ctx := errgroup.WithContext(ctx)

	if err := svc.Start(ctx); err != nil {
		logger.Error("node server start failed, retrying on long poll", zap.Error(err))
	}

	eg.Go(func() error {
		return cronPoll(ctx, cfg, svc, errorChan, logger)
	})

	if cleaner != nil && cfg.DatabaseCfg != nil && cfg.DatabaseCfg.Retention > 0 {
		eg.Go(func() error {
			return cronDbCleanup(ctx, cleaner, cfg.DatabaseCfg.Retention, errorChan, logger)
		})
	}

	if handler != nil && cfg.ServerCfg != nil && cfg.ServerCfg.Addr != "" {
		srv := &http.Server{
			Handler:      handler,
			Addr:         cfg.ServerCfg.Addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("serving api", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		// handle any async errors from the schedulers
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

func cronPoll(ctx context.Context, cfg *config.Config, svc ControllerService, errChan chan error, logger *zap.Logger) error {
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := c.AddFunc(every(cfg.PollInterval, 10*time.Second), func() {
		if err := svc.ShortPoll(ctx); err != nil {
			report(errChan, fmt.Errorf("%w: short poll: %w", errPoll, err), logger)
		}
	}); err != nil {
		return fmt.Errorf("%w: %w", errCron, err)
	}
	if _, err := c.AddFunc(every(cfg.LongPollInterval, 5*time.Minute), func() {
		if err := svc.LongPoll(ctx); err != nil {
			report(errChan, fmt.Errorf("%w: long poll: %w", errPoll, err), logger)
		}
	}); err != nil {
		return fmt.Errorf("%w: %w", errCron, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func cronDbCleanup(ctx context.Context, db DatabaseCleaner, retention time.Duration, errChan chan error, logger *zap.Logger) error {
	cleanup := func() error {
		deleted, err := db.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("cleaned up driver history", zap.Int64("deleted", deleted), zap.Duration("retention", retention))
		return nil
	}
	if err := cleanup(); err != nil {
		return err
	}

	// CRON automation
	c := cron.New(cron.WithLogger(zapCronLogger{logger: logger.Sugar()}))
	if _, err := c.AddFunc("0 3 * * *", func() {
		if err := cleanup(); err != nil {
			logger.Error("error cleaning up database", zap.Error(err))
			report(errChan, fmt.Errorf("%w: %w", errCron, err), logger)
		}
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func every(interval, fallback time.Duration) string {
	if interval <= 0 {
		interval = fallback
	}
	return "@every " + interval.String()
}

func report(errChan chan error, err error, logger *zap.Logger) {
	select {
	case errChan <- err:
	default:
		logger.Error("error channel full, dropping error", zap.Error(err))
	}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
