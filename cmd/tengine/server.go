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

	"github.com/kalambet/tengine/internal/api"
	"github.com/kalambet/tengine/internal/ingest"
	"github.com/kalambet/tengine/internal/logging"
	"github.com/kalambet/tengine/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the async ingest worker (foreground)",
	Long: `Run the HTTP API on 127.0.0.1:<server.port> together with the worker that
drains queued ingestion jobs. With --mcp the MCP server also runs on stdio.

Set TENGINE_API_TOKEN to require "Authorization: Bearer <token>" on every
route except /health.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(cmd.Context(), withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

func runServer(parent context.Context, withMCP bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	poll, err := a.cfg.Poll()
	if err != nil {
		return err
	}

	shutdownMetrics, err := telemetry.InitMetrics(ctx, a.cfg.Telemetry.OTLPEndpoint, version, a.cfg.Telemetry.OTLPInsecure, 0)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			a.logger.Warn("flushing metrics", "error", err)
		}
	}()

	if a.cfg.Server.APIToken == "" {
		a.logger.Warn("TENGINE_API_TOKEN is not set; API requests are not authenticated")
	}

	handler := api.NewAppHandler(api.AppDeps{
		Service: a.svc,
		Store:   a.db,
		Token:   a.cfg.Server.APIToken,
		Logger:  logging.For("api"),
	})
	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	worker := ingest.NewWorker(a.db, a.svc, poll)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("tengine listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Service: a.svc, Store: a.db})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			a.logger.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("shut down")
	return err
}
