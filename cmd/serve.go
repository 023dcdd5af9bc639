package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/timoknapp/contest-dashboard/pkg/api"
	"github.com/timoknapp/contest-dashboard/pkg/cache"
	"github.com/timoknapp/contest-dashboard/pkg/config"
	"github.com/timoknapp/contest-dashboard/pkg/contest"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/metrics"
	"github.com/timoknapp/contest-dashboard/pkg/models"
	"github.com/timoknapp/contest-dashboard/pkg/scheduler"
	"github.com/timoknapp/contest-dashboard/pkg/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	RunE:  runServe,
}

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Fetch the contest list once and report what the cache would hold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		contests := cache.NewContestCache(contest.NewClient(cfg.SourceURL, cfg.SourceTimeout))
		list, availability := contests.Refresh(cmd.Context())
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d contests (%s) from %s\n", len(list), availability, cfg.SourceURL)
		if err != nil {
			return err
		}
		if availability == models.AvailabilityUnavailable {
			return errors.New("contest source unavailable")
		}
		return nil
	},
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String("addr", config.DefaultAddr, "listen address")
	flags.String("timezone", config.DefaultTimezone, "IANA timezone used for contest start times")
	flags.String("store-path", config.DefaultStorePath, "path of the preferences database")
	flags.Bool("warmup-enabled", true, "refresh the contest cache on a schedule")
	flags.StringSlice("allowed-origins", config.DefaultAllowedOrigins, "frontend origins allowed to call the API with the client cookie")
	for _, name := range []string{"addr", "timezone", "store-path", "warmup-enabled", "allowed-origins"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("Starting contest dashboard %s on %s", version, cfg.Addr)

	contests := cache.NewContestCache(contest.NewClient(cfg.SourceURL, cfg.SourceTimeout))
	sessions := session.NewRegistry(api.SuggestionBoxes(contests))

	prefs, err := cache.NewBoltStore(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}
	defer func() {
		if err := prefs.Close(); err != nil {
			logger.Error("Failed to close preference store: %v", err)
		}
	}()
	logger.Info("Preference store opened at %s", cfg.StorePath)

	registerGauges(contests, sessions, prefs)

	sched, err := scheduler.New(scheduler.FromConfig(cfg), contests, sessions)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if cfg.WarmupEnabled {
		go sched.Warmup()
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle(metrics.DebugVarsPath, expvar.Handler())
	mux.Handle("/", api.NewHandler(contests, sessions, prefs, cfg.Location).WithAllowedOrigins(cfg.AllowedOrigins).Routes())
	logger.Info("Credentialed CORS allowed for: %s", strings.Join(cfg.AllowedOrigins, ", "))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server on %s...", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerGauges(contests *cache.ContestCache, sessions *session.Registry, prefs cache.Store) {
	metrics.Init()
	metrics.RegisterGauge("contest_cache", func() any { return contests.Stats() })
	metrics.RegisterGauge("sessions", func() any { return sessions.Len() })
	metrics.RegisterGauge("preferences", func() any {
		s, err := prefs.GetStatistics()
		if err != nil {
			return map[string]string{"error": err.Error()}
		}
		return s
	})
}
