// Package main provides the agentrag entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/agentrag/cli"
	"github.com/richinex/agentrag/config"
	"github.com/richinex/agentrag/internal/logging"
)

var provider string

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "agentrag",
		Short: "Tool-calling agent over CRM, music and document data, served over HTTP",
		Long: `A REST API around a ReAct agent that answers questions with tools:

- knowledge search: ArxivSearch, DuckDuckGoSearch, WikipediaSearch
- CRM: business client lookups and counts
- music database: natural-language SQL over the Chinook catalogue
- documents: similarity search over an indexed set of web pages`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini); defaults to LLM_PROVIDER")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(indexCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings() (config.Settings, error) {
	if provider != "" {
		return config.New(provider)
	}
	return config.Load()
}

// openApp loads settings, builds the logger and assembles the application.
// validate enforces the startup checks that need a usable API key.
func openApp(ctx context.Context, validate bool) (*cli.App, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}
	logger, err := logging.New(settings.Log.Level, settings.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(ctx, settings, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(ctx)
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()
			return cli.ListTools(cmd.Context(), app, cmd.OutOrStdout(), verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func seedCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the CRM database and load sample customers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				settings, err := loadSettings()
				if err != nil {
					return err
				}
				path = settings.Database.CRMPath
			}
			return cli.Seed(cmd.Context(), path, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&path, "db", "", "CRM database path (defaults to CRM_DATABASE_PATH)")

	return cmd
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the document index from the configured URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()
			return cli.Index(cmd.Context(), app, cmd.OutOrStdout())
		},
	}
}
