package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"supportstake/config"
	"supportstake/native/support"
	"supportstake/observability/logging"
	"supportstake/observability/metrics"
	telemetry "supportstake/observability/otel"
	"supportstake/storage"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "supportd:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("supportd", flag.ContinueOnError)
	configFile := fs.String("config", "./engine.toml", "Path to the engine configuration file")
	scenarioFile := fs.String("scenario", "", "Path to a YAML scenario to execute")
	snapshotDir := fs.String("snapshot-dir", "", "Directory for migration snapshots (overrides Storage.SnapshotDir)")
	backend := fs.String("storage", "", "Snapshot store backend, leveldb or bolt (overrides Storage.Backend)")
	metricsFile := fs.String("metrics-out", "", "Write Prometheus metrics in text format to this file after the run")
	initConfig := fs.Bool("init", false, "Write a default configuration to -config and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *initConfig {
		if err := config.Write(*configFile, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *configFile)
		return nil
	}
	if strings.TrimSpace(*scenarioFile) == "" {
		return fmt.Errorf("-scenario is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	logger, closeLog := setupLogging(cfg.Logging)
	defer closeLog()

	insecure, err := otlpInsecure(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"))
	if err != nil {
		return err
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Logging.Service,
		Environment: cfg.Logging.Env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	dir := cfg.Storage.SnapshotDir
	if *snapshotDir != "" {
		dir = *snapshotDir
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	db, err := storage.Open(cfg.Storage.Backend, dir)
	if err != nil {
		return err
	}
	defer db.Close()

	scenario, err := LoadScenario(*scenarioFile)
	if err != nil {
		return err
	}
	sim, err := NewSimulator(cfg, storage.NewSnapshotStore(db), metrics.Support(), logger)
	if err != nil {
		return err
	}
	steps, runErr := sim.Run(ctx, scenario)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sim.Report(steps)); err != nil {
		return err
	}
	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, prometheus.DefaultGatherer); err != nil {
			return err
		}
	}
	return runErr
}

func setupLogging(cfg config.Logging) (*slog.Logger, func()) {
	opts := logging.Options{Service: cfg.Service, Env: cfg.Env, Level: cfg.Level}
	if strings.TrimSpace(cfg.File) == "" {
		return logging.Setup(opts), func() {}
	}
	logger, closer := logging.SetupWithFile(opts, cfg.File)
	return logger, func() { _ = closer.Close() }
}

// otlpInsecure reads OTEL_EXPORTER_OTLP_INSECURE. Unset means a plaintext
// local collector; anything that is not a boolean is rejected.
func otlpInsecure(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return true, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("OTEL_EXPORTER_OTLP_INSECURE=%q: %w", value, err)
	}
	return parsed, nil
}

var _ support.SnapshotStore = (*storage.SnapshotStore)(nil)
