package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidahmann/coitrack/internal/config"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

// serverFactory builds the HTTP server and starts its background workers.
// The returned stop func shuts the workers down and releases resources.
type serverFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*http.Server, func(), error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("coi-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to coitrack config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := firstNonEmpty(*configPath, getenv("COI_CONFIG_PATH"))

	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("COI_LISTEN_ADDR"), cfg.ListenAddr, config.DefaultListenAddr)
	cfg.LogLevel = firstNonEmpty(getenv("COI_LOG_LEVEL"), cfg.LogLevel)
	cfg.Auth.DevToken = firstNonEmpty(getenv("COI_DEV_TOKEN"), cfg.Auth.DevToken)
	if driver := getenv("COI_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
		cfg.DB.DSN = getenv("COI_DB_DSN")
	}
	cfg.SeedPath = firstNonEmpty(getenv("COI_SEED_PATH"), cfg.SeedPath)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, stop, err := factory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("coi-gateway listening", "addr", cfg.ListenAddr, "db", cfg.DB.Driver, "storage", cfg.Storage.Driver, "verifier", cfg.Verifier.Driver)
	if err := listen(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listenAndServe serves until SIGINT or SIGTERM, then drains connections.
func listenAndServe(server *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
