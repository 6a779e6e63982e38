package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ArionMiles/kakeibo/internal/daemon"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/finance"
	"github.com/ArionMiles/kakeibo/pkg/parser"
)

func runParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	keywords := fs.String("keywords", os.Getenv("KAKEIBO_CONFIG"), "YAML file overriding the keyword groups")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: kakeibo parse [-keywords file] <message text>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		fs.Usage()
		return fmt.Errorf("message text is required")
	}

	kw, err := parser.LoadKeywords(*keywords)
	if err != nil {
		return err
	}
	return printJSON(parser.New(kw).Parse(text))
}

func runSummary(logger *slog.Logger, args []string) error {
	now := time.Now()
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	year := fs.Int("year", now.Year(), "Year to summarize")
	month := fs.Int("month", int(now.Month()), "Month to summarize (1-12)")
	txType := fs.String("type", "", "Restrict the total to one transaction type (収入 or 支出)")
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

	ctx, cancel := signalContext(logger)
	defer cancel()

	stores, err := daemon.New(registry, logger).Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc := finance.New(stores.Money)
	summary, err := svc.MonthlySummary(ctx, *year, *month)
	if err != nil {
		return err
	}
	total, err := svc.TotalAmount(ctx, *txType)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"monthly": summary,
		"total":   total,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
