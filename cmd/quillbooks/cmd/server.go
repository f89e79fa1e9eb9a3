package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/quillbooks/quillbooks/api"
	"github.com/quillbooks/quillbooks/identity"
	"github.com/quillbooks/quillbooks/internal/config"
	"github.com/quillbooks/quillbooks/ledger"
	"github.com/quillbooks/quillbooks/storage"
	bboltstorage "github.com/quillbooks/quillbooks/storage/bbolt"
	memorystorage "github.com/quillbooks/quillbooks/storage/memory"
	postgresstorage "github.com/quillbooks/quillbooks/storage/postgres"
)

var (
	port    int
	dataDir string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ledger service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = dataDir
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		repo, cleanup, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		provider := identity.NewClient(cfg.IdentityProviderURL, cfg.IdentityProviderTimeout)
		engine := ledger.NewHTTPEngine(cfg.LedgerEngineURL, cfg.LedgerEngineTimeout)

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithCanonicalHost(cfg.CanonicalHost),
		}
		if cfg.RedisURL != "" {
			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("parsing redis url: %w", err)
			}
			client := redis.NewClient(redisOpts)
			opts = append(opts, api.WithRateLimiter(
				api.NewRedisLimiter(client, cfg.RateLimitRPS, time.Second)))
		} else {
			opts = append(opts, api.WithRateLimiter(
				api.NewTokenBucketLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)))
		}
		if cfg.AuditWebhookURL != "" {
			opts = append(opts, api.WithAuditWebhook(cfg.AuditWebhookURL, cfg.AuditWebhookAuthHeader))
		}

		a := api.New(repo, provider, engine, opts...)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(chimiddleware.Logger)
		r.Use(chimiddleware.Recoverer)
		r.Use(api.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "port", cfg.Port, "storage", cfg.Storage)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func openRepository(cfg *config.Config) (storage.Repository, func(), error) {
	switch cfg.Storage {
	case "memory":
		return memorystorage.NewRepository(), func() {}, nil
	case "bbolt":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.DataDir+"/quillbooks.db", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bbolt storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		repo, err := postgresstorage.NewRepositoryFromDSN(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
}
