package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tbmqtt"
	"github.com/rustyeddy/tbmqtt/config"
	"github.com/rustyeddy/tbmqtt/logging"
	"github.com/rustyeddy/tbmqtt/transport/paho"
	"github.com/rustyeddy/tbmqtt/utils"
)

const sweepInterval = 5 * time.Second

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logOutput string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:           "tbmqtt",
	Short:         "ThingsBoard MQTT client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect and stay alive, sweeping request timeouts until interrupted",
	RunE:  runRun,
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry [json]",
	Short: "Connect, publish one telemetry payload, and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runTelemetry,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "tbmqtt.yaml", "Path to the transport config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.DefaultLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.DefaultFormat, "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", logging.DefaultOutput, "Log output (stdout, stderr, file)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (required when log-output=file)")
	rootCmd.AddCommand(runCmd, telemetryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	if strings.EqualFold(logOutput, "file") && strings.TrimSpace(logFile) == "" {
		return errors.New("log-output=file requires --log-file")
	}

	// The log file, if any, stays open for the life of the process.
	logger, _, _, err := logging.Build(logging.Config{
		Level:    logLevel,
		Format:   logFormat,
		Output:   logOutput,
		FilePath: logFile,
	})
	if err != nil {
		return err
	}
	level, _ := logging.ParseLevel(logLevel)
	logging.ApplyGlobal(logger, level)
	return nil
}

// connect loads the transport config, builds the paho connection and the
// tbmqtt.Client on top of it, and blocks until Connect's OnConnected fires
// or ctx is done.
func connect(ctx context.Context) (*tbmqtt.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	conn, err := paho.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	client := tbmqtt.New(conn)

	ready := make(chan struct{})
	var readyOnce sync.Once
	client.OnConnected(func() { readyOnce.Do(func() { close(ready) }) })
	client.OnDisconnected(func() { slog.Warn("tbmqtt: disconnected") })

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return client, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}

	// The timeout sweeper's "external tick": CheckTimeout does nothing by
	// itself, so the host has to drive it. A Ticker is the same mechanism
	// the rest of the fleet uses for periodic work.
	ticker := utils.NewTicker("tbmqtt-sweep", sweepInterval, func(time.Time) {
		client.CheckTimeout()
	})
	defer ticker.Stop()

	slog.Info("tbmqtt: connected", "state", client.GetState().String())
	<-ctx.Done()

	client.Disconnect()
	return nil
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		return err
	}

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
		return fmt.Errorf("telemetry payload must be valid JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	return client.TelemetryPublish(payload)
}
