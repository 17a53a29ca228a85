// Command outbox-relay polls an outbox table and publishes pending records
// to Kafka.
//
// Configuration comes from environment variables (or an optional .env file),
// e.g. DATABASE_DRIVER=postgres DATABASE_DSN=... KAFKA_BROKERS=host:9092.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seqra/outbox"
	"github.com/seqra/outbox/kafka"
	"github.com/seqra/outbox/mysql"
	"github.com/seqra/outbox/postgres"
	"github.com/seqra/outbox/promadapter"
	"github.com/seqra/outbox/zapadapter"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LogLevel string         `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "mysql".
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
	MaxConn int32  `mapstructure:"max_connections"`
}

type KafkaConfig struct {
	Brokers      string        `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	SASLUser     string        `mapstructure:"sasl_user"`
	SASLPassword string        `mapstructure:"sasl_password"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RelayConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Parallelism     int           `mapstructure:"parallelism"`
	PublishTimeout  time.Duration `mapstructure:"publish_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	PendingInterval time.Duration `mapstructure:"pending_interval"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func loadConfig() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	var conf Config
	if err := viper.ReadInConfig(); err != nil {
		// The .env file is optional; environment variables alone suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return conf, err
		}
	}
	if err := viper.Unmarshal(&conf); err != nil {
		return conf, err
	}

	return conf, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func main() {
	if err := run(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if conf.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if conf.Kafka.Brokers == "" {
		return errors.New("kafka brokers are required")
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, conf.Database)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer closeStore()

	publisher, err := newPublisher(conf.Kafka)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	relay := outbox.NewRelay(store, publisher, relayOptions(conf, sugar)...)

	if conf.Metrics.Addr != "" {
		startMetricsServer(ctx, conf.Metrics.Addr, sugar)
	}

	sugar.Infow("outbox relay started",
		"driver", conf.Database.Driver, "topic", conf.Kafka.Topic, "metrics_addr", conf.Metrics.Addr)

	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	sugar.Info("outbox relay stopped")

	return nil
}

func newStore(ctx context.Context, conf DatabaseConfig) (outbox.Store, func(), error) {
	switch conf.Driver {
	case "", "postgres":
		poolCfg, err := pgxpool.ParseConfig(conf.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse dsn: %w", err)
		}
		if conf.MaxConn > 0 {
			poolCfg.MaxConns = conf.MaxConn
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("new pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		store, err := postgres.NewStore(pool, postgres.WithTable(conf.Table))
		if err != nil {
			pool.Close()

			return nil, nil, err
		}

		return store, pool.Close, nil
	case "mysql":
		db, err := sql.Open("mysql", conf.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()

			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		store, err := mysql.NewStore(db, mysql.WithTable(conf.Table))
		if err != nil {
			_ = db.Close()

			return nil, nil, err
		}

		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
}

func newPublisher(conf KafkaConfig) (*kafka.Publisher, error) {
	opts := make([]kafka.Option, 0, 3)
	if conf.ClientID != "" {
		opts = append(opts, kafka.WithClientID(conf.ClientID))
	}
	if conf.Timeout > 0 {
		opts = append(opts, kafka.WithTimeout(conf.Timeout))
	}
	if conf.SASLUser != "" && conf.SASLPassword != "" {
		opts = append(opts, kafka.WithSASLPlain(conf.SASLUser, conf.SASLPassword))
	}

	return kafka.NewPublisher(strings.Split(conf.Brokers, ","), opts...)
}

func relayOptions(conf Config, sugar *zap.SugaredLogger) []outbox.RelayOption {
	opts := []outbox.RelayOption{
		outbox.WithLogger(zapadapter.New(sugar)),
		outbox.WithMetrics(promadapter.New(prometheus.DefaultRegisterer)),
		outbox.WithClassifier(kafka.Classifier),
		outbox.WithPolicy(outbox.Policy{
			MaxRetries:  conf.Relay.MaxRetries,
			BackoffBase: conf.Relay.BackoffBase,
			Jitter:      true,
		}),
	}
	if conf.Kafka.Topic != "" {
		opts = append(opts, outbox.WithTopic(conf.Kafka.Topic))
	}
	if conf.Relay.BatchSize > 0 {
		opts = append(opts, outbox.WithBatchSize(conf.Relay.BatchSize))
	}
	if conf.Relay.PollInterval > 0 {
		opts = append(opts, outbox.WithPollInterval(conf.Relay.PollInterval))
	}
	if conf.Relay.Parallelism > 0 {
		opts = append(opts, outbox.WithParallelism(conf.Relay.Parallelism))
	}
	if conf.Relay.PublishTimeout > 0 {
		opts = append(opts, outbox.WithPublishTimeout(conf.Relay.PublishTimeout))
	}
	if conf.Relay.PendingInterval > 0 {
		opts = append(opts, outbox.WithPendingInterval(conf.Relay.PendingInterval))
	}

	return opts
}

func startMetricsServer(ctx context.Context, addr string, sugar *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("metrics server failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
