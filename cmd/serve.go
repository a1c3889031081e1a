package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/httpapi"
	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
	"github.com/MimeLyc/scene-sub-translator/internal/persistence"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/service"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

const shutdownTimeout = 15 * time.Second

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type jobRunner interface {
	Start(exec jobs.Executor)
	Stop()
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the translation job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []config.Option
			if addr != "" {
				opts = append(opts, func(c *config.Config) { c.HTTP.Addr = addr })
			}
			return runServe(cmd.Context(), opts...)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, opts ...config.Option) error {
	cfg, err := loadConfig(opts...)
	if err != nil {
		return err
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	translators, err := newTranslatorHolder(cfg, store)
	if err != nil {
		return err
	}

	settingsPath := cfg.System.SettingsFile
	if settingsPath == "" {
		settingsPath = config.RuntimeSettingsFilePath()
	}
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		return err
	}
	settingsStore.OnUpdate(translators.apply)

	queue := jobs.NewQueue(cfg.HTTP.Workers, store)
	srv := httpapi.NewServer(queue,
		httpapi.WithProjectStore(store),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runWithComponents(ctx, cfg, queue, translators.executor(queue), srv)
}

// runWithComponents serves until ctx is done or the listener fails, then
// shuts the HTTP server down and stops the queue.
func runWithComponents(ctx context.Context, cfg *config.Config, runner jobRunner, exec jobs.Executor, httpSrv httpServer) error {
	runner.Start(exec)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("HTTP server listening on %s", cfg.HTTP.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	runner.Stop()
	return runErr
}

// translatorHolder swaps the file translator when runtime settings change.
// Running jobs keep the translator they started with.
type translatorHolder struct {
	base  *config.Config
	store project.Store

	mu      sync.RWMutex
	current *service.FileTranslator
}

func newTranslatorHolder(cfg *config.Config, store project.Store) (*translatorHolder, error) {
	t, err := service.NewFileTranslator(cfg, service.WithStore(store))
	if err != nil {
		return nil, err
	}
	return &translatorHolder{base: cfg, store: store, current: t}, nil
}

func (h *translatorHolder) apply(settings config.RuntimeSettings) {
	next := *h.base
	config.WithRuntimeSettings(settings)(&next)
	t, err := service.NewFileTranslator(&next, service.WithStore(h.store))
	if err != nil {
		log.Error("Runtime settings not applied: %v", err)
		return
	}
	h.mu.Lock()
	h.current = t
	h.mu.Unlock()
	log.Info("Applied runtime settings: provider=%s model=%s target=%s",
		next.LLM.Provider, next.LLM.Model, next.Translate.TargetLanguage)
}

func (h *translatorHolder) get() *service.FileTranslator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *translatorHolder) executor(rec service.ProjectRecorder) jobs.Executor {
	return func(ctx context.Context, job *jobs.TranslationJob, progress jobs.ProgressFunc) error {
		return h.get().JobExecutor(rec)(ctx, job, progress)
	}
}
