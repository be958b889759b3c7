package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/previouslives/internal/api"
	"github.com/kalambet/previouslives/internal/frame"
	"github.com/kalambet/previouslives/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture service (camera feed, HTTP API, optional MCP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	logger.Info(versionString())

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Initialize(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()
	logger.Info("store ready", "path", store.Path())

	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	hand, latest, err := buildViewer(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	slot := frame.NewSlot()
	pipe, err := buildPipeline(slot, store, gen, hand, cfg, logger)
	if err != nil {
		return err
	}
	// Background captures finish before the store closes.
	defer pipe.Drain()

	if cfg.Server.Token == "" {
		logger.Warn("API token not set; HTTP endpoints are unauthenticated")
	}
	handler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Pipeline: pipe,
		Latest:   latest,
		Token:    cfg.Server.Token,
		Logger:   logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if feed := buildFeed(cfg, logger); feed != nil {
		g.Go(func() error {
			// A dead camera leaves uploads working, so feed errors are logged only.
			if err := feed.Run(gctx, slot); err != nil {
				logger.Error("frame feed stopped", "error", err)
			}
			return nil
		})
	} else {
		logger.Info("no frame source configured; captures require an uploaded image")
	}

	if cfg.MCP.Enabled {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:       store,
			Pipeline:    pipe,
			CaptureWait: cfg.Generation.Timeout + 30*time.Second,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
