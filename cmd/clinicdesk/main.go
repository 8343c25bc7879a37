package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/clinicdesk/internal/config"
	"github.com/dukerupert/clinicdesk/internal/desk"
	"github.com/dukerupert/clinicdesk/internal/logging"
	"github.com/dukerupert/clinicdesk/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicdesk",
		Short:         "Local front desk for the clinic management API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(passwordCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(visitCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(themeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openDesk loads configuration and wires the desk. When restore is set the
// persisted session is restored before returning.
func openDesk(ctx context.Context, restore bool) (*desk.Desk, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.IsDev())

	d, err := desk.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if restore {
		if err := d.Sessions.Initialize(ctx); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the desk HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDesk(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()
	logger := d.Logger

	srv := server.New(ctx, d, logger)
	srv.Start()

	httpServer := &http.Server{
		Addr:         ":" + d.Config.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: d.Config.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Str("api", d.Config.APIURL).Msg("clinic desk listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// requireSession fails with a readable message when nobody is logged in.
func requireSession(d *desk.Desk) error {
	if d.Sessions.Get() == nil {
		return errors.New("not logged in; run `clinicdesk login` first")
	}
	return nil
}
