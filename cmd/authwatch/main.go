// Authwatch - authentication log brute-force detection daemon
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/supporttools/authwatch/pkg/engine"
	"github.com/supporttools/authwatch/pkg/exporters/console"
	"github.com/supporttools/authwatch/pkg/exporters/logsink"
	promexporter "github.com/supporttools/authwatch/pkg/exporters/prometheus"
	"github.com/supporttools/authwatch/pkg/health"
	"github.com/supporttools/authwatch/pkg/logger"
	"github.com/supporttools/authwatch/pkg/types"
	"github.com/supporttools/authwatch/pkg/util"
	"github.com/supporttools/authwatch/pkg/watch"
)

// Build-time variables set by goreleaser or make
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Command-line flags
var (
	configPath = flag.String("config", "/etc/authwatch/config.yaml", "Path to configuration file")
	targetPath = flag.String("target", "", "Override monitored log file path")
	logLevel   = flag.String("log-level", "", "Override log level (debug, info, warn, error, fatal)")
	logFormat  = flag.String("log-format", "", "Override log format (json, text)")
	version    = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	config, err := loadConfiguration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(config.Settings.LogLevel, config.Settings.LogFormat,
		config.Settings.LogOutput, config.Settings.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Infof("Authwatch %s starting", Version)
	logger.Infof("Monitoring %s (window=%s, threshold=%d, policy=%s)",
		config.Target.Path, config.Detection.Window, config.Detection.Threshold, config.Detection.Policy)

	if err := run(config); err != nil {
		logger.Errorf("Fatal: %v", err)
		logger.Close()
		os.Exit(1)
	}

	logger.Infof("Authwatch stopped")
}

// run wires the notifier, sinks, engine and auxiliary servers together and
// blocks until shutdown or fatal error.
func run(config *types.AuthwatchConfig) error {
	notifier, err := watch.NewNotifier()
	if err != nil {
		return err
	}
	defer notifier.Close()

	sinks, observer, exporter, err := createSinks(config)
	if err != nil {
		return err
	}

	eng, err := engine.New(config, notifier, sinks, observer)
	if err != nil {
		return err
	}

	if exporter != nil {
		if err := exporter.Start(); err != nil {
			return err
		}
	}

	var healthServer *health.Server
	if config.Health.Enabled {
		healthServer, err = health.NewServer(&config.Health, eng)
		if err != nil {
			return err
		}
		if err := healthServer.Start(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		errChan <- eng.Run(ctx)
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Infof("Received signal %v, shutting down", sig)
		cancel()
		runErr = <-errChan
	case runErr = <-errChan:
	}

	// Bounded shutdown for the auxiliary servers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warnf("Health server shutdown failed")
		}
	}
	if exporter != nil {
		if err := exporter.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warnf("Prometheus exporter shutdown failed")
		}
	}

	return runErr
}

// loadConfiguration loads the configuration with proper precedence:
// 1. Start with file config or defaults if the file doesn't exist
// 2. Apply CLI flag overrides
// 3. Re-validate the final configuration
func loadConfiguration() (*types.AuthwatchConfig, error) {
	config, err := util.LoadConfigOrDefault(*configPath)
	if err != nil {
		return nil, err
	}

	applyFlagOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after applying overrides: %w", err)
	}

	return config, nil
}

// applyFlagOverrides applies command-line flag overrides to the configuration
func applyFlagOverrides(config *types.AuthwatchConfig) {
	if *targetPath != "" {
		config.Target.Path = *targetPath
	}
	if *logLevel != "" {
		config.Settings.LogLevel = *logLevel
	}
	if *logFormat != "" {
		config.Settings.LogFormat = *logFormat
	}
}

// createSinks builds the configured alert sinks. The Prometheus exporter is
// returned separately because it also serves as the engine observer and owns
// an HTTP server lifecycle.
func createSinks(config *types.AuthwatchConfig) ([]types.AlertSink, engine.Observer, *promexporter.Exporter, error) {
	var sinks []types.AlertSink

	if config.Sinks.Console != nil && config.Sinks.Console.Enabled {
		sinks = append(sinks, console.NewSink())
	}
	if config.Sinks.Log != nil && config.Sinks.Log.Enabled {
		sinks = append(sinks, logsink.NewSink())
	}

	var observer engine.Observer
	var exporter *promexporter.Exporter
	if config.Metrics.Enabled {
		var err error
		exporter, err = promexporter.NewExporter(&config.Metrics, config.Target.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, exporter)
		observer = exporter
	}

	if len(sinks) == 0 {
		return nil, nil, nil, fmt.Errorf("no alert sinks enabled")
	}

	return sinks, observer, exporter, nil
}

// printVersion prints version information to stdout
func printVersion() {
	fmt.Printf("authwatch %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built: %s\n", BuildTime)
	fmt.Printf("  Go Version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
