package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ArionMiles/kakeibo/internal/daemon"
	"github.com/ArionMiles/kakeibo/pkg/client"
	"github.com/ArionMiles/kakeibo/pkg/config"
	"github.com/ArionMiles/kakeibo/pkg/parser"
)

// runStatus checks configuration, credentials and storage connectivity.
func runStatus(logger *slog.Logger) error {
	fmt.Println("=== kakeibo Status ===")
	fmt.Println()

	allGood := true

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: ✗ %v\n", err)
		printFinalStatus(false)
		return nil
	}
	fmt.Printf("Configuration: ✓ store=%s addr=%s\n", cfg.Store, cfg.Addr)

	fmt.Print("Keywords: ")
	if kw, err := parser.LoadKeywords(cfg.KeywordsFile); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Printf("✓ %d expense groups\n", len(kw.Expense))
	}

	checkStore(logger, cfg, &allGood)
	checkCredentials()

	printFinalStatus(allGood)
	return nil
}

func checkStore(logger *slog.Logger, cfg config.Config, allGood *bool) {
	fmt.Printf("Store (%s): ", cfg.Store)

	registry, err := newRegistry()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := daemon.New(registry, logger).Open(ctx, cfg)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer stores.Close()

	records, err := stores.Money.List(ctx, true)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("✓ reachable (%d records in %s)\n", len(records), cfg.MoneyTable)
}

// checkCredentials reports on the Google credentials. They are only needed
// by the sheets exporter, so problems here are not fatal.
func checkCredentials() {
	fmt.Printf("Credentials file (%s): ", config.ClientSecretFile)
	if _, err := os.Stat(config.ClientSecretFile); errors.Is(err, os.ErrNotExist) {
		fmt.Println("- not found (only needed for sheets export)")
	} else {
		fmt.Println("✓ Found")
	}

	fmt.Printf("OAuth token (%s): ", client.DefaultTokenFile)
	token, err := client.LoadToken(client.DefaultTokenFile)
	switch {
	case err != nil:
		fmt.Println("- not found (run 'kakeibo setup')")
	case token.Expiry.Before(time.Now()):
		fmt.Println("⚠ Expired (will refresh on next run)")
	default:
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'kakeibo serve' to start the server.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'kakeibo status' again.")
	}
}
