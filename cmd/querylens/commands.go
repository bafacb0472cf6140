package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querylens/querylens/pkg/clients"
	"github.com/querylens/querylens/pkg/collector"
	"github.com/querylens/querylens/pkg/config"
	"github.com/querylens/querylens/pkg/dremio"
	"github.com/querylens/querylens/pkg/logger"
	"github.com/querylens/querylens/pkg/models"
	"github.com/querylens/querylens/pkg/store"
)

// loadConfig reads the config file when given, otherwise starts from
// defaults, then applies environment overrides for the secrets that
// usually live in the environment.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if v := os.Getenv("DREMIO_URL"); v != "" {
		cfg.Engine.URL = v
	}
	if v := os.Getenv("DREMIO_USERNAME"); v != "" {
		cfg.Engine.Username = v
	}
	if v := os.Getenv("DREMIO_PASSWORD"); v != "" {
		cfg.Engine.Password = v
	}
	if v := os.Getenv("DREMIO_TOKEN"); v != "" {
		cfg.Engine.Token = v
	}
	if v := os.Getenv("DREMIO_PROJECT_ID"); v != "" {
		cfg.Engine.ProjectID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	encoding := "json"
	if cfg.Observability.Development {
		encoding = "console"
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    encoding,
	}); err != nil {
		return nil, err
	}
	return logger.Get(), nil
}

// buildEngine wires the gateway client from configuration.
func buildEngine(cfg *config.Config, log *zap.Logger) *dremio.Client {
	hc := clients.DefaultHTTPConfig()
	hc.RequestTimeout = cfg.Timeouts.Request
	hc.InsecureSkipVerify = !cfg.Engine.VerifySSL
	hc.RateLimit = cfg.Reliability.RateLimitPerSec
	httpc := clients.NewHTTPClient(hc, log)

	router := dremio.NewRouter(cfg.Engine.URL, cfg.Engine.ProjectID)
	tokens := dremio.NewTokenManager(cfg.Engine.URL, cfg.Engine.Username,
		cfg.Engine.Password, cfg.Engine.Token, httpc, log)
	policy := &dremio.RetryPolicy{
		MaxAttempts: cfg.Reliability.RetryAttempts,
		BaseDelay:   cfg.Reliability.RetryDelay,
		MaxDelay:    cfg.Reliability.MaxRetryDelay,
	}
	clientCfg := dremio.ClientConfig{
		RequestTimeout: cfg.Timeouts.Request,
		PollInterval:   cfg.Timeouts.PollInterval,
		JobDeadline:    cfg.Timeouts.JobDeadline,
	}
	return dremio.NewClient(httpc, router, tokens, policy, clientCfg, log)
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify engine and database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			engine := buildEngine(cfg, log)
			info, err := engine.SystemInfo(ctx)
			if err != nil {
				return fmt.Errorf("engine check failed: %w", err)
			}
			fmt.Printf("engine: %s (dialect=%s", info.Status, engine.Dialect())
			if info.ProjectID != "" {
				fmt.Printf(", project=%s", info.ProjectID)
			}
			fmt.Println(")")

			jobs, err := engine.QueryHistory(ctx, 5, 0)
			if err != nil {
				return fmt.Errorf("query history check failed: %w", err)
			}
			fmt.Printf("query history: ok (%d sampled)\n", len(jobs))

			entities, err := engine.CatalogRoot(ctx)
			if err != nil {
				return fmt.Errorf("catalog check failed: %w", err)
			}
			fmt.Printf("catalog: ok (%d root entities)\n", len(entities))

			reflections, err := engine.Reflections(ctx)
			if err != nil {
				return fmt.Errorf("reflection check failed: %w", err)
			}
			fmt.Printf("reflections: ok (%d defined)\n", len(reflections))

			st, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
			if err != nil {
				return fmt.Errorf("database check failed: %w", err)
			}
			defer st.Close()
			fmt.Println("database: ok")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			st, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Migrate()
		},
	}
}

func newCollectCmd() *cobra.Command {
	var (
		once     bool
		jobID    string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run collection passes",
		Long: `Run a collection pass against the configured engine. By default the
collector keeps running on the configured interval; --once runs a
single pass, and --job collects one job's query and profile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Collection.Interval = interval
			}
			log, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := buildEngine(cfg, log)
			st, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(); err != nil {
				return err
			}

			orch := collector.New(engine, store.NewSink(st), cfg.Collection, log)

			if jobID != "" {
				result, err := orch.CollectQuery(ctx, jobID)
				if err != nil {
					return err
				}
				fmt.Printf("job %s: query inserted=%t profile inserted=%t\n",
					jobID, result.Query, result.Profile)
				return nil
			}

			if cfg.Observability.EnableMetrics {
				go serveMetrics(cfg.Observability.MetricsAddr, log)
			}

			runInterval := cfg.Collection.Interval
			if once {
				runInterval = 0
			}
			return collector.NewRunner(orch, runInterval, log).Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	cmd.Flags().StringVar(&jobID, "job", "", "collect a single job by id")
	cmd.Flags().DurationVar(&interval, "interval", 0, "override the pass interval")
	return cmd
}

// openSink connects to the database for the read-only report paths.
// The caller must invoke the returned cleanup.
func openSink(ctx context.Context) (*store.Sink, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		st.Close()
		log.Sync() //nolint:errcheck
	}
	return store.NewSink(st), cleanup, nil
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect collected telemetry",
	}
	cmd.AddCommand(newReportQueriesCmd(), newReportReflectionsCmd(), newReportDatasetsCmd())
	return cmd
}

func newReportQueriesCmd() *cobra.Command {
	var (
		limit       int
		user        string
		slowest     bool
		minDuration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "List collected queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sink, cleanup, err := openSink(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var recs []models.QueryRecord
			switch {
			case slowest:
				recs, err = sink.SlowestQueries(ctx, minDuration.Milliseconds(), limit)
			case user != "":
				recs, err = sink.QueriesByUser(ctx, user, limit)
			default:
				recs, err = sink.RecentQueries(ctx, limit)
			}
			if err != nil {
				return err
			}

			for _, rec := range recs {
				duration := "-"
				if rec.DurationMS != nil {
					duration = (time.Duration(*rec.DurationMS) * time.Millisecond).String()
				}
				sql := rec.SQLText
				if len(sql) > 80 {
					sql = sql[:77] + "..."
				}
				fmt.Printf("%s  %-10s %-9s %8s  %s\n", rec.JobID, rec.User, rec.Status, duration, sql)
			}
			fmt.Printf("%d queries\n", len(recs))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to list")
	cmd.Flags().StringVar(&user, "user", "", "list a single user's queries")
	cmd.Flags().BoolVar(&slowest, "slowest", false, "order by duration instead of recency")
	cmd.Flags().DurationVar(&minDuration, "min-duration", 0, "duration floor with --slowest")
	return cmd
}

func newReportReflectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reflections",
		Short: "List collected reflection metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sink, cleanup, err := openSink(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := sink.ListReflections(ctx)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Printf("%s  %-12s %-40s hits=%d size=%.1fMB\n",
					rec.ReflectionID, rec.Type, rec.DatasetPath+"/"+rec.Name, rec.HitCount, rec.SizeMB)
			}
			fmt.Printf("%d reflections\n", len(recs))
			return nil
		},
	}
}

func newReportDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List collected dataset metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sink, cleanup, err := openSink(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := sink.ListDatasets(ctx)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Printf("%s  %-18s %-40s cols=%d rows=%d\n",
					rec.DatasetID, rec.DatasetType, rec.DatasetPath, len(rec.Columns), rec.RowCount)
			}
			fmt.Printf("%d datasets\n", len(recs))
			return nil
		},
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics endpoint listening", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics endpoint stopped", zap.Error(err))
	}
}
