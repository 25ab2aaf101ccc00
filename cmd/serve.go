package cmd

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/hkdf"

	"github.com/msomdec/microlearn/internal/certificate"
	"github.com/msomdec/microlearn/internal/config"
	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/handler"
	"github.com/msomdec/microlearn/internal/notify"
	"github.com/msomdec/microlearn/internal/progress"
	"github.com/msomdec/microlearn/internal/repository/github"
	"github.com/msomdec/microlearn/internal/repository/sqlite"
	"github.com/msomdec/microlearn/internal/roster"
	"github.com/msomdec/microlearn/internal/service"
	"github.com/msomdec/microlearn/internal/view"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web portal (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Lookups allowed per client: a burst of 10, then one every two seconds.
const (
	lookupRate  = 0.5
	lookupBurst = 10
)

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.CallTimeout}
	learners, err := roster.Load(ctx, roster.NewSource(cfg.RosterSource, client), cfg.RosterFormat, cfg.Secret)
	if err != nil {
		return err
	}

	blobs, closeBlobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	progressSecret := ""
	if cfg.EncryptProgress {
		progressSecret = cfg.Secret
	}
	store := progress.NewStore(blobs, progress.Options{
		Name:              cfg.ProgressFile,
		Secret:            progressSecret,
		ConditionalWrites: cfg.ConditionalWrites,
		Location:          cfg.Location(),
	})

	var notifier service.Notifier = notify.LogNotifier{}
	if cfg.ResendAPIKey != "" {
		notifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.MailFrom, cfg.CourseName)
	}

	completion := service.NewCompletionService(learners, store, certificate.NewPDFIssuer(cfg.CourseName), notifier, service.CompletionConfig{
		RequiredDuration: cfg.RequiredDuration,
		FailOpen:         cfg.FailOpen,
		CallTimeout:      cfg.CallTimeout,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.Deps{
		Completion:   completion,
		Tokens:       service.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL),
		Admin:        service.NewAdminAuth(cfg.AdminPasswordHash),
		Export:       service.NewExportService(store),
		Limiter:      service.NewTokenBucket(ctx, lookupRate, lookupBurst),
		Site:         view.Site{CourseName: cfg.CourseName, VideoURL: cfg.VideoURL},
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
	})

	csrfKey, err := deriveKey(cfg.SessionSecret, "csrf")
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.SecurityHeaders(handler.CSRF(csrfKey, cfg.CookieSecure, cfg.TrustedOrigins)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"backend", cfg.ProgressBackend,
			"fail_open", cfg.FailOpen,
			"conditional_writes", cfg.ConditionalWrites,
			"required", cfg.RequiredDuration,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// openBlobs opens the configured progress backend.
func openBlobs(ctx context.Context, cfg *config.Config) (domain.BlobStore, func(), error) {
	switch cfg.ProgressBackend {
	case config.BackendSQLite:
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrProgressStoreUnavailable, err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied", "path", cfg.DatabasePath)
		return db.Documents(), func() { db.Close() }, nil

	case config.BackendGitHub:
		owner, repo, _ := cfg.GitHubOwnerRepo()
		store := github.NewContentsStore(github.Config{
			Token:  cfg.GitHubToken,
			Owner:  owner,
			Repo:   repo,
			Branch: cfg.GitHubBranch,
		})
		return store, func() {}, nil

	case config.BackendMemory:
		slog.Warn("progress is kept in memory and lost on restart")
		return progress.NewMemoryBlobs(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown progress backend %q", domain.ErrConfiguration, cfg.ProgressBackend)
}

// deriveKey expands the session secret into an independent 32-byte key
// for purpose.
func deriveKey(secret, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("microlearn "+purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}
