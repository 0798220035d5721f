package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/davidahmann/coitrack/internal/api"
	"github.com/davidahmann/coitrack/internal/auth"
	"github.com/davidahmann/coitrack/internal/blob"
	"github.com/davidahmann/coitrack/internal/config"
	"github.com/davidahmann/coitrack/internal/crypto"
	"github.com/davidahmann/coitrack/internal/notify"
	"github.com/davidahmann/coitrack/internal/seed"
	"github.com/davidahmann/coitrack/internal/slack"
	"github.com/davidahmann/coitrack/internal/store"
	"github.com/davidahmann/coitrack/internal/store/pgstore"
	"github.com/davidahmann/coitrack/internal/store/sqlstore"
	"github.com/davidahmann/coitrack/internal/tracking"
	"github.com/davidahmann/coitrack/internal/verify"
	"github.com/davidahmann/coitrack/internal/workers/expiry"
	"github.com/davidahmann/coitrack/internal/workers/verifyrunner"
)

type closer func() error

func newServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*http.Server, func(), error) {
	var closers []closer
	fail := func(err error) (*http.Server, func(), error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, nil, err
	}

	backend, err := openBackend(ctx, cfg.DB)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	closers = append(closers, backend.Close)
	tracker := store.NewTracker(backend)

	blobs, blobClose, err := openBlobStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fail(fmt.Errorf("open blob store: %w", err))
	}
	if blobClose != nil {
		closers = append(closers, blobClose)
	}

	verifier, verifierClose, err := newVerifier(ctx, cfg.Verifier, logger)
	if err != nil {
		return fail(fmt.Errorf("verifier: %w", err))
	}
	if verifierClose != nil {
		closers = append(closers, verifierClose)
	}

	runner := verifyrunner.New(verifyrunner.Config{
		Concurrency: cfg.Workers.VerifyConcurrency,
		QueueSize:   cfg.Workers.QueueSize,
		Timeout:     cfg.Workers.VerifyTimeout,
	}, verifyrunner.NewRegistry(time.Now), verifyrunner.Processor{
		Verifier: verifier,
		Tracker:  tracker,
		Now:      time.Now,
	}, logger.With("component", "verifyrunner"))

	svc := tracking.New(tracker,
		tracking.WithBlobStore(blobs),
		tracking.WithRunner(runner),
		tracking.WithWindowDays(cfg.Expiry.WindowDays),
		tracking.WithMaxUploadBytes(cfg.Storage.MaxUploadBytes),
		tracking.WithLogger(logger.With("component", "tracking")),
	)

	if cfg.SeedPath != "" {
		fixtures, err := seed.Load(cfg.SeedPath)
		if err != nil {
			return fail(err)
		}
		if _, err := seed.Apply(ctx, svc, fixtures, logger); err != nil {
			return fail(err)
		}
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(workerCtx); err != nil {
			logger.Error("verify runner stopped", "error", err)
		}
	}()

	if cfg.Expiry.Enabled {
		sweeper := expiry.NewSweeper(tracker, cfg.Expiry.Interval, time.Now, logger.With("component", "expiry"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(workerCtx)
		}()
	}

	if cfg.Notify.Enabled {
		publishers, err := newPublishers(cfg.Notify, logger.With("component", "notify"))
		if err != nil {
			cancelWorkers()
			wg.Wait()
			return fail(err)
		}
		for _, publisher := range publishers {
			unsubscribe := tracker.Subscribe(publisher.Listener())
			closers = append(closers, func() error { unsubscribe(); return nil })
			wg.Add(1)
			go func() {
				defer wg.Done()
				publisher.Run(workerCtx)
			}()
		}
	}

	handler := &api.Handler{
		Auth:           auth.NewTokenAuthenticator(cfg.Auth.DevToken, cfg.Auth.Tokens),
		Service:        svc,
		Logger:         logger.With("component", "api"),
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	server.RegisterOnShutdown(handler.Close)

	stop := func() {
		cancelWorkers()
		wg.Wait()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close", "error", err)
			}
		}
	}
	return server, stop, nil
}

func openBackend(ctx context.Context, cfg config.DBConfig) (store.Backend, error) {
	switch store.DBDriver(cfg.Driver) {
	case "", store.DBMemory:
		return store.NewInMemoryStore(), nil
	case store.DBSQLite:
		s, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, s.DB(), store.DBSQLite); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case store.DBPostgres:
		s, err := pgstore.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx, s.DB(), store.DBPostgres); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func openBlobStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (blob.Store, closer, error) {
	switch cfg.Driver {
	case "", "local":
		l, err := blob.NewLocal(cfg.Dir)
		return l, nil, err
	case "gcs":
		g, err := blob.NewGCS(ctx, cfg.Bucket, cfg.Prefix, logger.With("component", "gcs"))
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func newVerifier(ctx context.Context, cfg config.VerifierConfig, logger *slog.Logger) (verify.Verifier, closer, error) {
	switch cfg.Driver {
	case "", "mock":
		return verify.NewMock(cfg.MockDelay), nil, nil
	case "vertex":
		v, err := verify.NewVertex(ctx, cfg.ProjectID, cfg.Region, cfg.Model, logger.With("component", "vertex"))
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported verifier driver %q", cfg.Driver)
	}
}

// newPublishers builds one publisher per configured destination: the
// CloudEvents webhook and the Slack channel.
func newPublishers(cfg config.NotifyConfig, logger *slog.Logger) ([]*notify.Publisher, error) {
	kinds := make([]store.EventKind, 0, len(cfg.Events))
	for _, kind := range cfg.Events {
		kinds = append(kinds, store.EventKind(kind))
	}
	base := notify.Config{
		Source:     cfg.Source,
		QueueSize:  cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		Kinds:      kinds,
	}

	var publishers []*notify.Publisher
	if cfg.WebhookURL != "" {
		var signer *crypto.Signer
		if cfg.SigningKeyPath != "" {
			key, err := crypto.LoadSigningKey(cfg.SigningKeyPath)
			if err != nil {
				return nil, fmt.Errorf("signing key: %w", err)
			}
			signer = crypto.NewSigner(key)
		}
		webhook, err := notify.NewWebhook(cfg.WebhookURL, signer)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, notify.NewPublisher(webhook, base, logger.With("sink", "webhook")))
	}
	if cfg.SlackWebhook != "" {
		slackCfg := base
		slackCfg.Kinds = slack.Kinds
		publishers = append(publishers, notify.NewPublisher(slack.NewPoster(cfg.SlackWebhook), slackCfg, logger.With("sink", "slack")))
	}
	return publishers, nil
}
