// Command outbox-sweeper ignores expired pending records and optionally
// purges old terminal rows, on a cron schedule.
//
// Run it as a singleton (cron job or sidecar) next to the relay instances;
// the relay itself never touches expired records.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/seqra/outbox"
	"github.com/seqra/outbox/mysql"
	"github.com/seqra/outbox/postgres"
)

const exitUsage = 2

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any) {
	l.logger.Printf("INFO %s %s", msg, formatArgs(args))
}

func (l stdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("WARN %s %s", msg, formatArgs(args))
}

func (l stdLogger) Error(msg string, args ...any) {
	l.logger.Printf("ERROR %s %s", msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

// maintainer is the slice of the store contract the sweeper needs.
type maintainer interface {
	outbox.Sweeper
	outbox.Purger
}

func main() {
	var (
		driver    string
		dsn       string
		table     string
		schedule  string
		limit     int
		retention time.Duration
		once      bool
		verbose   bool
	)

	flag.StringVar(&driver, "driver", "postgres", "Database driver: postgres or mysql")
	flag.StringVar(&dsn, "dsn", "", "Database DSN")
	flag.StringVar(&table, "table", "outbox", "Outbox table name")
	flag.StringVar(&schedule, "schedule", "@every 1h", "Cron schedule for sweep runs")
	flag.IntVar(&limit, "limit", 1000, "Max rows affected per run")
	flag.DurationVar(&retention, "retention", 0, "Purge terminal rows older than this duration (0 disables purging)")
	flag.BoolVar(&once, "once", false, "Run once and exit")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(driver, dsn, table, schedule, limit, retention, once, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(driver, dsn, table, schedule string, limit int, retention time.Duration, once, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: verbose}

	store, closeStore, err := newMaintainer(ctx, driver, dsn, table)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer closeStore()

	sweep := func() {
		now := time.Now().UTC()

		swept, err := store.SweepExpired(ctx, now, limit)
		if err != nil {
			logger.Error("sweep failed", "err", err)
		} else if swept > 0 {
			logger.Info("expired records ignored", "count", swept)
		} else {
			logger.Debug("nothing to sweep")
		}

		if retention <= 0 {
			return
		}
		purged, err := store.Purge(ctx, now.Add(-retention), limit)
		if err != nil {
			logger.Error("purge failed", "err", err)
		} else if purged > 0 {
			logger.Info("terminal records purged", "count", purged)
		}
	}

	if once {
		sweep()

		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, sweep); err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("sweeper started", "schedule", schedule, "driver", driver)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("sweeper stopped")

	return nil
}

func newMaintainer(ctx context.Context, driver, dsn, table string) (maintainer, func(), error) {
	switch driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("new pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		store, err := postgres.NewStore(pool, postgres.WithTable(table))
		if err != nil {
			pool.Close()

			return nil, nil, err
		}

		return store, pool.Close, nil
	case "mysql":
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()

			return nil, nil, fmt.Errorf("ping: %w", err)
		}
		store, err := mysql.NewStore(db, mysql.WithTable(table))
		if err != nil {
			_ = db.Close()

			return nil, nil, err
		}

		return store, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
