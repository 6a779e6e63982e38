package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ArionMiles/kakeibo/pkg/client"
	"github.com/ArionMiles/kakeibo/pkg/config"
)

// runSetup handles the OAuth setup flow.
func runSetup(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	force := fs.Bool("force", false, "Re-authenticate even if a token exists")
	secretsPath := fs.String("secrets", config.ClientSecretFile, "Path to the OAuth client secret JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("=== kakeibo Setup ===")
	fmt.Println()

	if _, err := os.Stat(*secretsPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", *secretsPath, *secretsPath)
	}

	if !*force {
		if _, err := os.Stat(client.DefaultTokenFile); err == nil {
			fmt.Printf("Already authenticated! Token file exists: %s\n", client.DefaultTokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: kakeibo setup -force")
			return nil
		}
	} else {
		if err := os.Remove(client.DefaultTokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	registry, err := newRegistry()
	if err != nil {
		return err
	}
	scopes, err := registry.GetAllScopes()
	if err != nil {
		return err
	}

	fmt.Println("Required permissions:")
	for _, s := range scopes {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := client.New(ctx, client.Config{
		SecretFile:  *secretsPath,
		TokenFile:   client.DefaultTokenFile,
		Scopes:      scopes,
		Interactive: true,
	}, logger); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Printf("Token saved to: %s\n", client.DefaultTokenFile)
	fmt.Println("Run 'kakeibo export -to sheets' to export records.")
	return nil
}
