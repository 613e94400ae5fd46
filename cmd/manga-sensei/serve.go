package main

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

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/mangasensei/internal/app"
	"github.com/Lllllllleong/mangasensei/internal/ui"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the drag-and-drop page",
	Long: `Serve starts the web front-end. Drop a PDF on the page, press Translate and
the translated file opens in a new tab.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = appConfig.ServerAddr
	}

	a, err := app.New(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.Server()
	go srv.RunJanitor(ctx, janitorInterval)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	fmt.Fprintln(cmd.ErrOrStderr(), ui.FormatBanner(fmt.Sprintf("Manga Sensei listening on %s", addr)))
	slog.Info("HTTP server started.", "addr", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	slog.Info("HTTP server stopped.")
	return nil
}
