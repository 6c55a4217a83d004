package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/daemon"
	parleyversion "github.com/parley-ai/parley/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "parleyd",
		Short:         "Parley daemon - dialogue manager, speech services and HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = parleyversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.Flags().String("config", "", "Path to configuration file (default: <parley home>/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths, err := config.EnsureDirs()
	if err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	if err := setupLogging(paths); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = paths.Config
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	d, err := daemon.New(daemon.Options{Config: cfg, Paths: paths})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}

	log.Printf("Parley daemon started (PID: %d)", os.Getpid())
	log.Printf("HTTP API: http://%s", d.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %s, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Daemon stopped")
	return nil
}

func setupLogging(paths config.Paths) error {
	if err := os.MkdirAll(paths.Logs, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Printf("=== Parley Daemon Starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return nil
}
