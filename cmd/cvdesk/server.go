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

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/cvdesk/internal/api"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only CV tools over MCP",
	Long: `Serve read-only CV tools over MCP. By default the server speaks stdio so
an MCP client can launch it directly. With --http it listens on the given
address and requires a bearer token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("http")
		token, _ := cmd.Flags().GetString("token")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(mcpDeps(a))
		if addr == "" {
			a.logger.Info("MCP server started (stdio transport)")
			stdioSrv := server.NewStdioServer(mcpSrv)
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		}

		if token == "" {
			token = os.Getenv("CVDESK_MCP_TOKEN")
		}
		if token == "" {
			token = uuid.NewString()
			printStatus("MCP token", "%s", token)
		}
		return serveHTTP(ctx, addr, api.NewHTTPHandler(mcpSrv, token))
	},
}

func mcpDeps(a *app) api.MCPDeps {
	return api.MCPDeps{
		API:     a.api,
		Tokens:  a,
		History: a.store,
		PerPage: a.cfg.Search.PerPage,
		Logger:  a.logger,
	}
}

// serveHTTP runs h on addr until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printStep("cvdesk MCP listening on http://%s/mcp", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	mcpCmd.Flags().String("http", "", "serve streamable HTTP on this address instead of stdio, e.g. 127.0.0.1:8765")
	mcpCmd.Flags().String("token", "", "bearer token for --http (default $CVDESK_MCP_TOKEN or a random token)")
}
