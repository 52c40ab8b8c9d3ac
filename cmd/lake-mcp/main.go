package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/log"
	"github.com/ironsheep/lake-growth-mcp/internal/server"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("lake-growth-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("lake-growth-mcp - MCP server for glacial lake growth analysis")
			fmt.Println()
			fmt.Println("Usage: lake-growth-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  LAKEGROWTH_LOG_LEVEL=debug        Enable debug logging")
			fmt.Println("  LAKEGROWTH_CONFIG=<file>          YAML configuration file")
			fmt.Println("  LAKEGROWTH_STORE_PATH=<file>      SQLite file for analysis history")
			fmt.Println("  LAKEGROWTH_ALERT_THRESHOLD_KM2=n  Growth that raises an alert")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lake-growth-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Logs go to stderr; stdout is for MCP protocol
	if err := log.Init(cfg.Debug()); err != nil {
		return err
	}
	defer log.Sync()

	log.Debugf("Lake Growth MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)

	var history *store.Store
	if cfg.Store.Path != "" {
		history, err = store.Open(context.Background(), cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open analysis store: %w", err)
		}
		defer history.Close()
		log.Infof("Recording analyses in %s", cfg.Store.Path)
	}

	srv := server.New(cfg, history)
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
