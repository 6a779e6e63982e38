package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/kakeibo/internal/daemon"
	"github.com/ArionMiles/kakeibo/pkg/client"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/store"
)

func runExport(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	to := fs.String("to", "csv", "Exporter plugin (csv, json, sheets)")
	table := fs.String("table", "money", "Table to export (money or line)")
	out := fs.String("out", "", "Output file for csv/json (default kakeibo.<ext>)")
	rawConfig := fs.String("config", "", "Exporter config as JSON, overriding the defaults")
	includeDeleted := fs.Bool("include-deleted", false, "Include soft-deleted records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	registry, err := newRegistry()
	if err != nil {
		return err
	}

	exporterCfg := json.RawMessage(*rawConfig)
	if len(exporterCfg) == 0 {
		exporterCfg, err = buildExporterConfig(*to, *out, cfg)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	scopes, err := registry.GetAllScopes(*to)
	if err != nil {
		return err
	}
	var httpClient *http.Client
	if len(scopes) > 0 {
		httpClient, err = client.New(ctx, client.Config{
			SecretFile: config.ClientSecretFile,
			TokenFile:  client.DefaultTokenFile,
			Scopes:     scopes,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating http client: %w", err)
		}
	}

	writer, err := registry.CreateExporter(ctx, *to, httpClient, exporterCfg,
		logger.With("component", "exporter", "plugin", *to))
	if err != nil {
		return fmt.Errorf("creating %s exporter: %w", *to, err)
	}

	runner := daemon.New(registry, logger)
	stores, err := runner.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	src, err := pickTable(stores, *table)
	if err != nil {
		return err
	}

	n, err := runner.Export(ctx, src, writer, *includeDeleted)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d records from %s via %s\n", n, src.Name(), *to)
	return nil
}

func pickTable(stores *daemon.Stores, name string) (*store.Table, error) {
	switch name {
	case "money":
		return stores.Money, nil
	case "line":
		return stores.Line, nil
	default:
		return nil, fmt.Errorf("unknown table %q (want money or line)", name)
	}
}

// buildExporterConfig builds the default exporter config from flags and the environment.
func buildExporterConfig(exporter, out string, cfg config.Config) (json.RawMessage, error) {
	switch exporter {
	case "csv", "json":
		if out == "" {
			out = "kakeibo." + exporter
		}
		return json.Marshal(map[string]any{"filePath": out})
	case "sheets":
		if cfg.GSheetsName == "" {
			return nil, fmt.Errorf("GSHEETS_NAME is required")
		}
		if cfg.GSheetsID == "" && cfg.GSheetsTitle == "" {
			return nil, fmt.Errorf("either GSHEETS_ID or GSHEETS_TITLE is required")
		}
		m := map[string]any{"sheetName": cfg.GSheetsName}
		if cfg.GSheetsTitle != "" {
			m["sheetTitle"] = cfg.GSheetsTitle
		}
		if cfg.GSheetsID != "" {
			m["sheetId"] = cfg.GSheetsID
		}
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("no default config for exporter %q; pass -config", exporter)
	}
}
