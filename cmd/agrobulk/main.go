package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agrobulk/internal/config"
	"agrobulk/internal/events"
	"agrobulk/internal/http/handlers"
	applog "agrobulk/internal/log"
	"agrobulk/internal/ratelimit"
	"agrobulk/internal/repos"
	"agrobulk/internal/services"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand needs once config is loaded.
type app struct {
	cfg config.Config
	log *zap.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "agrobulk",
		Short:         "Group buying of agricultural inputs: bulk orders, pledges and individual orders",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			lg, err := applog.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			applog.SetDefault(lg)
			a.cfg, a.log = cfg, lg
			lg.Info("config loaded",
				zap.String("port", cfg.Port),
				zap.String("db_dsn", cfg.DBDSN),
				zap.Strings("kafka_brokers", cfg.KafkaBrokers),
				zap.Duration("bulk_deadline", cfg.BulkDeadline),
			)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.seedCmd(), a.reconcileCmd())
	return root
}

func (a *app) openDB() (*sqlx.DB, error) {
	db, err := repos.OpenDB(a.cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.DBDSN, err)
	}
	return db, nil
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			a.log.Info("schema ready", zap.String("db_dsn", a.cfg.DBDSN))
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the demo cooperative and products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return repos.Seed(db, a.log)
		},
	}
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Give back stock for cancelled orders whose restore failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			svc := services.NewOrderService(db, repos.NewOrderRepo(db), repos.NewProductRepo(db),
				services.Options{Log: a.log})
			n, err := svc.Reconcile(cmd.Context())
			a.log.Info("reconcile finished", zap.Int("restored", n))
			return err
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert demo data before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, seed bool) error {
	shutdownTracing, err := initTracing(a.cfg.TraceStdout)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	if seed {
		if err := repos.Seed(db, a.log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	var publisher events.Publisher = events.Nop{}
	if len(a.cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				a.log.Warn("kafka writer close", zap.Error(err))
			}
		}()
		publisher = kp
		a.log.Info("publishing events to kafka", zap.String("topic", a.cfg.KafkaTopic))
	}

	opts := services.Options{
		Log:              a.log,
		Events:           publisher,
		CollectionWindow: a.cfg.BulkDeadline,
	}
	callers := ratelimit.New(a.cfg.RateLimit, a.cfg.RateWindow)
	// coarse per-IP guard in front of the per-caller limit
	ipGuard := limiter.New(limiter.Config{Max: 300, Expiration: time.Minute})
	web := handlers.NewApp(handlers.NewDeps(db, opts), callers, ipGuard)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return callers.Run(ctx) })
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", ":"+a.cfg.Port))
		if err := web.Listen(":" + a.cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down")
		return web.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}
