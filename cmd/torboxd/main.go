// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/torboxd/internal/api"
	"github.com/autobrr/torboxd/internal/api/handlers"
	"github.com/autobrr/torboxd/internal/automations"
	"github.com/autobrr/torboxd/internal/batch"
	"github.com/autobrr/torboxd/internal/buildinfo"
	"github.com/autobrr/torboxd/internal/config"
	"github.com/autobrr/torboxd/internal/database"
	"github.com/autobrr/torboxd/internal/jobsync"
	"github.com/autobrr/torboxd/internal/links"
	"github.com/autobrr/torboxd/internal/logger"
	"github.com/autobrr/torboxd/internal/models"
	"github.com/autobrr/torboxd/internal/torbox"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "torboxd",
		Short: "Headless daemon that mirrors and automates TorBox download jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file or directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(buildinfo.String())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.New(configPath)
			return err
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	appCfg, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := appCfg.Config

	logger.Setup(cfg)
	log.Info().Str("version", buildinfo.Version).Msg("starting torboxd")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(appCfg.ConfigFile())
	}
	db, err := database.New(filepath.Join(dataDir, "torboxd.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ruleStore := models.NewAutomationRuleStore(db)
	historyStore := models.NewDownloadHistoryStore(db)
	archiveStore := models.NewArchiveStore(db)
	settingsStore := models.NewSettingsStore(db)

	client := torbox.NewClient(cfg.APIEndpoint, cfg.APIKey, buildinfo.Version)
	snapshot := jobsync.NewSnapshot()

	var pollerMetrics *jobsync.Metrics
	registry := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pollerMetrics = jobsync.NewMetrics(registry)
	}

	pollerCfg := jobsync.DefaultConfig()
	if cfg.PollIntervalActive > 0 {
		pollerCfg.ActiveInterval = time.Duration(cfg.PollIntervalActive) * time.Second
	}
	if cfg.PollIntervalReduced > 0 {
		pollerCfg.AutomationInterval = time.Duration(cfg.PollIntervalReduced) * time.Second
	}

	poller := jobsync.NewPoller(pollerCfg, client, snapshot, ruleStore, settingsStore, pollerMetrics)

	resolver := links.NewResolver(client, historyStore)
	processor := batch.NewProcessor(resolver, client, snapshot)

	engine := automations.NewEngine(ruleStore, snapshot, client, archiveStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ruleStore.OnChange(func() { poller.RefreshRuleState(ctx) })
	poller.Start(ctx)
	engine.Start(ctx)

	if cfg.MetricsEnabled {
		go serveMetrics(cfg.MetricsHost, cfg.MetricsPort, registry)
	}

	server := api.NewServer(
		cfg,
		handlers.NewJobsHandler(snapshot, poller, processor, client),
		handlers.NewAutomationsHandler(ruleStore, engine),
		handlers.NewSettingsHandler(settingsStore),
		handlers.NewArchiveHandler(archiveStore, client),
		handlers.NewEventsHandler(snapshot, poller),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}

	log.Info().Msg("torboxd stopped")
	return nil
}

func serveMetrics(host string, port int, registry *prometheus.Registry) {
	addr := fmt.Sprintf("%s:%d", host, port)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
