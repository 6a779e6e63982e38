package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/kakeibo/internal/daemon"
	"github.com/ArionMiles/kakeibo/internal/plugins"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/logging"
	"github.com/ArionMiles/kakeibo/pkg/plugins/backends"
	csvplugin "github.com/ArionMiles/kakeibo/pkg/plugins/exporters/csv"
	jsonplugin "github.com/ArionMiles/kakeibo/pkg/plugins/exporters/json"
	sheetsplugin "github.com/ArionMiles/kakeibo/pkg/plugins/exporters/sheets"
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(logger)
	case "parse":
		err = runParse(args)
	case "summary":
		err = runSummary(logger, args)
	case "export":
		err = runExport(logger, args)
	case "setup":
		err = runSetup(logger, args)
	case "status":
		err = runStatus(logger)
	case "plugins":
		err = runPlugins()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("kakeibo - LINE message ledger")
	fmt.Println("\nUsage:")
	fmt.Println("  kakeibo <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve     Run the webhook and record API server")
	fmt.Println("  parse     Parse a message and print the extracted transaction")
	fmt.Println("  summary   Print the monthly summary and totals")
	fmt.Println("  export    Export records to csv, json or Google Sheets")
	fmt.Println("  setup     Authenticate with Google for the sheets exporter")
	fmt.Println("  status    Check configuration, credentials and storage")
	fmt.Println("  plugins   List storage backends and exporters")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'kakeibo <command> -h' for more information on a command.")
}

func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	for _, b := range []plugins.BackendPlugin{backends.Memory{}, backends.Postgres{}, backends.Redis{}} {
		if err := registry.RegisterBackend(b); err != nil {
			return nil, fmt.Errorf("registering %s backend: %w", b.Name(), err)
		}
	}
	for _, e := range []plugins.ExporterPlugin{&csvplugin.Plugin{}, &jsonplugin.Plugin{}, &sheetsplugin.Plugin{}} {
		if err := registry.RegisterExporter(e); err != nil {
			return nil, fmt.Errorf("registering %s exporter: %w", e.Name(), err)
		}
	}
	return registry, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runServe(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	return daemon.New(registry, logger).Run(ctx, cfg)
}

func runPlugins() error {
	registry, err := newRegistry()
	if err != nil {
		return err
	}

	fmt.Println("Storage backends (KAKEIBO_STORE):")
	for _, b := range registry.ListBackends() {
		fmt.Printf("  %-10s %s\n", b.Name(), b.Description())
	}

	fmt.Println("\nExporters (kakeibo export -to):")
	for _, e := range registry.ListExporters() {
		fmt.Printf("  %-10s %s\n", e.Name(), e.Description())
		if required, ok := e.ConfigSchema()["required"].([]string); ok && len(required) > 0 {
			fmt.Printf("  %-10s required config: %v\n", "", required)
		}
	}
	return nil
}
