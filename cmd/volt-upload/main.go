package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/voltbora/volt/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "Volt server URL (e.g. https://volt.tail1234.ts.net)")
	exportPath := flag.String("path", "", "Alpha Progression CSV export, or a directory of them")
	userID := flag.Int("user", 0, "user to import for")
	dryRun := flag.Bool("dry-run", false, "list what would be uploaded without sending anything")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("volt-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *exportPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: volt-upload -server <URL> -path <export.csv|dir> [-user N] [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *serverURL == "" && !*dryRun {
		fmt.Fprintf(os.Stderr, "Error: -server is required (or use -dry-run)\n")
		os.Exit(1)
	}
	*serverURL = strings.TrimRight(*serverURL, "/")

	paths, err := collectExports(*exportPath)
	if err != nil {
		log.Error("reading exports failed", "path", *exportPath, "error", err)
		os.Exit(1)
	}
	log.Info("exports found", "count", len(paths))

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	state, err := upload.OpenStateDB(filepath.Join(homeDir, ".volt-upload"))
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := upload.NewClient(*serverURL, os.Getenv("VOLT_API_KEY"), *userID)
	stats, err := upload.New(client, state, *userID, *dryRun, log).Run(ctx, paths)

	log.Info("upload complete",
		"files_uploaded", stats.FilesUploaded,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"sessions_inserted", stats.SessionsInserted,
		"sessions_skipped", stats.SessionsSkipped,
		"sets_received", stats.SetsReceived,
	)
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}
}

// collectExports returns path itself, or the .csv files directly inside it in name order.
func collectExports(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
