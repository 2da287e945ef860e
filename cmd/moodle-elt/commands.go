package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/config"
	"github.com/and161185/moodle-elt/internal/migrate"
	"github.com/and161185/moodle-elt/internal/moodle"
	"github.com/and161185/moodle-elt/internal/record"
	"github.com/and161185/moodle-elt/internal/repository"
	"github.com/and161185/moodle-elt/internal/repository/postgres"
	"github.com/and161185/moodle-elt/internal/repository/sqlite"
	"github.com/and161185/moodle-elt/internal/service"
)

// app carries the state shared by subcommands.
type app struct {
	log      *zap.Logger
	v        *viper.Viper
	settings config.Settings
	// httpClient overrides the Moodle transport; nil uses the default.
	httpClient *http.Client
}

func newApp(log *zap.Logger) *app {
	return &app{log: log, v: config.New()}
}

func newRootCmd(log *zap.Logger) *cobra.Command {
	return newApp(log).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moodle-elt",
		Short:         "Extract Moodle web service data into a raw snapshot table",
		Version:       version + " (" + buildDate + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.FromViper(a.v)
			if err != nil {
				return err
			}
			a.settings = s
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("instance", "", "logical instance name (ELT_INSTANCE)")
	flags.String("db-driver", "", "storage driver: postgres or sqlite (ELT_DB_DRIVER)")
	flags.String("dsn", "", "PostgreSQL DSN or SQLite file path (ELT_DSN)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (ELT_METRICS_ADDR)")
	for key, name := range map[string]string{
		"elt_instance":     "instance",
		"elt_db_driver":    "db-driver",
		"elt_dsn":          "dsn",
		"elt_metrics_addr": "metrics-addr",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(a.migrateCmd(), a.extractCmd(), a.instancesCmd())
	return root
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrate.Up(cmd.Context(), a.settings.DBDriver, a.settings.DSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.log.Info("migrations applied", zap.String("driver", a.settings.DBDriver))
			return nil
		},
	}
}

func (a *app) extractCmd() *cobra.Command {
	var entities []string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract entities from the configured instance and load them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected := a.settings.Entities
			if len(entities) > 0 {
				parsed, err := config.ParseEntities(strings.Join(entities, ","))
				if err != nil {
					return err
				}
				selected = parsed
			}
			return a.extract(cmd.Context(), selected, cmd)
		},
	}
	cmd.Flags().StringArrayVar(&entities, "entity", nil, "entity to extract (repeatable; default ELT_ENTITIES or all)")
	return cmd
}

func (a *app) extract(ctx context.Context, entities []string, cmd *cobra.Command) error {
	s := a.settings
	inst, err := s.Resolver().ResolveInstance(a.v, s.Instance)
	if err != nil {
		return err
	}

	client, err := moodle.New(inst, moodle.Options{
		RateLimitDelay:    rateLimitDelay(s.RateLimitDelay),
		MaxRetries:        maxRetries(s.MaxRetries),
		Timeout:           s.Timeout,
		RequestsPerSecond: s.RequestsPerSecond,
		HTTPClient:        a.httpClient,
		Logger:            a.log,
	})
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(ctx, s)
	if err != nil {
		return err
	}
	defer closeRepo()

	stopMetrics := a.serveMetrics(s.MetricsAddr)
	defer stopMetrics()

	svc := service.NewExtractionService(client, repo, record.NewPreparer(nil), a.log)
	sum, err := svc.Run(ctx, entities)
	for _, e := range record.Entities() {
		if st, ok := sum.Entities[e]; ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s extracted=%d inserted=%d stored=%d failed=%d\n",
				e, st.Extracted, st.Inserted, st.Snapshots, st.FailedParents)
		}
	}
	return err
}

// maxRetries maps the configured count onto moodle.Options, where zero means default.
func maxRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// rateLimitDelay maps a configured zero delay onto "no delay" in moodle.Options.
func rateLimitDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

func (a *app) instancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List configured instances (tokens are never printed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			all, err := a.settings.Resolver().Parse(a.v.GetString(config.KeyMoodleURLs), a.v.GetString(config.KeyMoodleTokens))
			if err == nil {
				for _, c := range all {
					fmt.Fprintf(out, "%s\t%s\n", c.Instance, c.URL)
				}
				return nil
			}

			c, rerr := a.settings.Resolver().ResolveInstance(a.v, a.settings.Instance)
			if rerr != nil {
				return rerr
			}
			fmt.Fprintf(out, "%s\t%s\n", c.Instance, c.URL)
			return nil
		},
	}
}

func openRepository(ctx context.Context, s config.Settings) (repository.RawRepository, func(), error) {
	switch s.DBDriver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, s.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewRawRepo(db), func() { _ = db.Close() }, nil
	default:
		db, err := postgres.New(ctx, s.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRawRepo(db), db.Close, nil
	}
}

// serveMetrics starts a /metrics listener when addr is set and returns its shutdown.
func (a *app) serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
