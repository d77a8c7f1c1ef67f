package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/gapwatch/internal/config"
	"github.com/rewired-gh/gapwatch/internal/logger"
)

var (
	configPath string
	reuseScan  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gapwatch",
		Short: "Small-cap gap scanner with real-time Telegram alerts",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (optional)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scan for candidates, then stream and poll them for alerts",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			defer logger.Sync()
			runRealtime(signalContext(), cfg)
		},
	}
	runCmd.Flags().BoolVar(&reuseScan, "reuse-scan", false, "Start from the last persisted scan instead of rescanning")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one candidate scan, print and persist the result",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			defer logger.Sync()
			runScanOnly(signalContext(), cfg)
		},
	}

	rootCmd.AddCommand(runCmd, scanCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gapwatch: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	} else {
		logger.Info("Configuration loaded from defaults and environment")
	}
	return cfg
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()
	return ctx
}
