// Command nutriclean filters an Open Food Facts product export down to the
// rows and columns a downstream database needs.
//
// Usage:
//
//	nutriclean [run] [-input P] [-output P] [-format csv|parquet] [-profile P] [-chunk-bytes N]
//	nutriclean serve
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/nutriclean/internal/config"
	"github.com/JonMunkholm/nutriclean/internal/core"
	"github.com/JonMunkholm/nutriclean/internal/logging"
	"github.com/JonMunkholm/nutriclean/internal/objstore"
	"github.com/JonMunkholm/nutriclean/internal/output"
	"github.com/JonMunkholm/nutriclean/internal/store"
	"github.com/JonMunkholm/nutriclean/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cmd := "run"
	if len(args) > 0 && (args[0] == "run" || args[0] == "serve") {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	fs := flag.NewFlagSet("nutriclean "+cmd, flag.ContinueOnError)
	fs.StringVar(&cfg.Pipeline.InputPath, "input", cfg.Pipeline.InputPath, "tab-separated product export")
	fs.StringVar(&cfg.Pipeline.OutputPath, "output", cfg.Pipeline.OutputPath, "output file")
	fs.StringVar(&cfg.Pipeline.Format, "format", cfg.Pipeline.Format, "output format: csv or parquet")
	fs.StringVar(&cfg.Pipeline.ProfilePath, "profile", cfg.Pipeline.ProfilePath, "YAML filter profile")
	fs.Int64Var(&cfg.Pipeline.ChunkBytes, "chunk-bytes", cfg.Pipeline.ChunkBytes, "input bytes parsed per chunk")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", fmt.Errorf("config validation: %w", err))
		return 1
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		reportError(err)
		return 1
	}
	defer cleanup()

	if cmd == "serve" {
		err = serve(ctx, cfg, svc)
	} else {
		err = runOnce(ctx, svc)
	}
	if err != nil {
		reportError(err)
		return 1
	}
	return 0
}

func reportError(err error) {
	slog.Error(core.FormatUserError(err), "code", core.MapError(err).Code, "cause", err)
}

// buildService wires the loader, the optional database and storage steps and
// the run limiter. cleanup releases the database pool.
func buildService(ctx context.Context, cfg *config.Config) (*core.Service, func(), error) {
	profile, err := config.LoadProfile(cfg.Pipeline.ProfilePath)
	if err != nil {
		return nil, nil, err
	}

	format, err := output.ParseFormat(cfg.Pipeline.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	loader := core.NewLoader(core.LoaderOptions{
		ChunkBytes:  cfg.Pipeline.ChunkBytes,
		SampleBytes: cfg.Pipeline.SampleBytes,
		Overrides:   core.DtypeOverrides(profile.TextColumns...),
		FilterColumns: core.FilterColumns{
			Category:       profile.Columns.Category,
			Country:        profile.Columns.Country,
			ProductName:    profile.Columns.ProductName,
			NutritionGrade: profile.Columns.NutritionGrade,
		},
	})

	opts := core.ServiceOptions{
		InputPath:  cfg.Pipeline.InputPath,
		OutputPath: cfg.Pipeline.OutputPath,
		Format:     format,
		Headers:    profile.SelectedColumns(),
		Categories: profile.Categories,
		Countries:  profile.Countries,
		RunTimeout: cfg.Run.Timeout,
	}

	cleanup := func() {}

	if cfg.Database.Enabled() {
		pool, err := store.Connect(ctx, store.PoolConfig{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		opts.Tables = store.NewPostgresLoader(pool, cfg.Database.Table)
	}

	if cfg.Storage.Enabled() {
		pub, err := objstore.NewPublisher(objstore.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts.Publisher = pub
	}

	limiter := core.NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWait)
	return core.NewService(loader, limiter, opts), cleanup, nil
}

func runOnce(ctx context.Context, svc *core.Service) error {
	res, err := svc.Run(ctx, core.RunRequest{Trigger: "cli"})
	if err != nil {
		return err
	}
	slog.Info("done",
		"output", res.Output,
		"rows_written", res.RowsWritten,
		"elapsed", res.Duration.String(),
	)
	return nil
}

// serve runs the HTTP API and background triggers until ctx is cancelled,
// then waits for active runs before stopping the server.
func serve(ctx context.Context, cfg *config.Config, svc *core.Service) error {
	if cfg.Schedule.Cron != "" {
		if err := svc.StartScheduler(ctx, cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
	}
	if cfg.Schedule.WatchInput {
		if err := svc.WatchInput(ctx, cfg.Pipeline.InputPath); err != nil {
			return err
		}
	}

	server := web.NewServer(svc, cfg.Server)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := svc.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for runs to complete", "active", status.Active)
		if err := svc.Limiter().WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("runs did not complete in time", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
