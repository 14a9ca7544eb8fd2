package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tickvault/tickvault/internal/capture"
	"github.com/tickvault/tickvault/internal/config"
	"github.com/tickvault/tickvault/internal/logging"
	"github.com/tickvault/tickvault/internal/metrics"
	"github.com/tickvault/tickvault/internal/recorder"
	"github.com/tickvault/tickvault/internal/server"
	"github.com/tickvault/tickvault/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tickvault",
		Short: "TickVault - Market Data Capture Daemon",
		Long: `TickVault drives a headless browser against a market data page, decodes
the streaming and history traffic it observes, and persists bars, quotes
and trades under a local data directory.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE:    runCapture,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory path")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().String("target-url", "", "Page URL the capture session navigates to")
	rootCmd.PersistentFlags().Bool("headless", true, "Run the browser headless")
	rootCmd.PersistentFlags().String("status-listen", "127.0.0.1:8077", "Status server listen address")

	rootCmd.AddCommand(newCompactCmd())

	return rootCmd
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	logger.WithFields(logrus.Fields{
		"version":  version,
		"commit":   commit,
		"date":     date,
		"data_dir": cfg.DataDir,
		"target":   cfg.Capture.TargetURL,
	}).Info("Starting TickVault")

	engine := store.NewEngine(store.Options{
		Logger: logging.Component(logger, "store"),
	})

	tracker := metrics.NewSystemTracker(cfg.DataDir)
	mgr := metrics.NewManager(cfg.Metrics, tracker)

	session := capture.NewSession(cfg.Capture, logging.Component(logger, "capture"), mgr)
	rec := recorder.New(cfg.DataDir, cfg.Capture.Exchange, cfg.Recorder, engine,
		logging.Component(logger, "recorder"), mgr)

	srv := server.New(cfg.Server, server.Deps{
		Version:     version,
		SessionID:   session.ID,
		MetricsPath: cfg.Metrics.Path,
		Metrics:     mgr,
		Tracker:     tracker,
		Capture:     session,
		Recorder:    rec,
	}, logging.Component(logger, "server"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logger.Info("Shutting down gracefully...")
		cancel()
	}()

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx, session.Records()) })
	g.Go(func() error { return srv.Start(gctx) })

	runErr := g.Wait()

	// The capture channel is closed once the session returns; sweep
	// anything the recorder had not picked up before it stopped.
	for record := range session.Records() {
		rec.Record(record)
	}
	if err := rec.Flush(); err != nil {
		logger.WithError(err).Error("Final flush failed")
	}
	if err := engine.Close(); err != nil {
		logger.WithError(err).Error("Engine close failed")
	}
	if err := mgr.Stop(); err != nil {
		logger.WithError(err).Debug("Metrics manager already stopped")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	logger.Info("TickVault stopped")
	return nil
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <journal>...",
		Short: "Rewrite upsert journals keeping only the newest line per key",
		Long: `Compact rewrites each named journal file in place, keeping only the
most recent line for every key. Files are replaced atomically, so a
crash mid-compaction leaves the original journal untouched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			logger := logging.Setup(logLevel, logFormat)

			engine := store.NewEngine(store.Options{
				Logger: logging.Component(logger, "store"),
			})
			defer engine.Close()

			return compactJournals(engine, args, cmd.OutOrStdout())
		},
	}
}

func compactJournals(engine *store.Engine, paths []string, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSCANNED\tKEPT\tREMOVED")
	for _, path := range paths {
		stats, err := engine.CompactJournal(path)
		if err != nil {
			w.Flush()
			return fmt.Errorf("compact %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", path, stats.Scanned, stats.Kept, stats.Removed)
	}
	return w.Flush()
}
