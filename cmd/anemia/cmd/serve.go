package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/handler"
	"anemia-detect-go/internal/session"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI",
	Long: `Run the web UI and API.

Routes:
  GET  /                          landing page
  GET  /analisis                  form and result
  POST /analisis                  submit the form
  POST /analisis/reset            clear form and result
  POST /api/analizar-anemia       JSON proxy to the analysis backend
  POST /api/analizar-anemia/sse   state transitions as server-sent events
  GET  /health                    liveness, including backend reachability`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	port := cfg.Port
	if servePort != "" {
		port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 优先使用PostgreSQL，否则使用内存存储
	var store session.Store
	var cleaner session.Cleaner
	if cfg.DatabaseURL != "" {
		pgStore, err := session.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("failed to connect to PostgreSQL, using memory session store", zap.Error(err))
		} else if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Warn("failed to prepare session table, using memory session store", zap.Error(err))
			pgStore.Close()
		} else {
			logger.Info("using PostgreSQL session store")
			defer pgStore.Close()
			store, cleaner = pgStore, pgStore
		}
	}
	if store == nil {
		mem := session.NewMemoryStore()
		store, cleaner = mem, mem
	}

	backend := fetcher.NewBackendClient(cfg.BackendURL, cfg.BackendTimeout, logger.Named("backend"))
	h, err := handler.NewAnalysisHandler(backend, store, cfg.SessionTTL, logger.Named("http"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("port", port), zap.String("backend", backend.BaseURL()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return session.RunJanitor(gctx, cleaner, time.Minute, logger.Named("session"))
	})
	g.Go(func() error {
		return session.RunJanitor(gctx, h, time.Minute, logger.Named("live"))
	})

	return g.Wait()
}
