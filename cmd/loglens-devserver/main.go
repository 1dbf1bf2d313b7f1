// Package main runs an in-memory log-analysis service for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/raphaelgruber/loglens/internal/devserver"
	"github.com/raphaelgruber/loglens/internal/models"
)

func main() {
	// Parse flags
	seedDir := flag.String("seed", "", "directory of *.log files to load as processed records")
	step := flag.Int("step", devserver.DefaultStep, "job progress per poll")
	flaky := flag.Int("unavailable-every", 0, "answer every Nth job poll with 503 (0 disables)")
	user := flag.String("user", "dev:dev", "login credentials as userid:password")
	flag.Parse()

	// Get server port from environment or default
	port := os.Getenv("LOGLENS_DEVSERVER_PORT")
	if port == "" {
		port = "5000"
	}

	// Initialize logging
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	users := map[string]string{}
	if id, pw, ok := strings.Cut(*user, ":"); ok && id != "" {
		users[id] = pw
	}

	srv := devserver.New(devserver.Config{
		Token:            os.Getenv("LOGLENS_TOKEN"),
		Users:            users,
		Step:             *step,
		UnavailableEvery: *flaky,
	}, logger)

	if *seedDir != "" {
		n, err := seed(srv, *seedDir)
		if err != nil {
			slog.Error("failed to seed records", "dir", *seedDir, "error", err)
			os.Exit(1)
		}
		slog.Info("seeded records", "dir", *seedDir, "count", n)
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("loglens devserver available", "url", fmt.Sprintf("http://localhost:%s/", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// seed loads every *.log file in dir as a public record.
func seed(srv *devserver.Server, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", p, err)
		}
		srv.Seed(filepath.Base(p), string(data), models.VisibilityPublic)
	}
	return len(paths), nil
}
