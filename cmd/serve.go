package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recognition API server",
	Long: `Start the labvision web server.
The server exposes the recognition endpoint, reference-image registration
and storage statistics over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to SERVER_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to SERVER_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	port := mustGetInt(cmd, "port")
	if port == 0 {
		port = cfg.Server.Port
	}
	host := mustGetString(cmd, "host")
	if host == "" {
		host = cfg.Server.Host
	}

	service, cleanup, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Database.DSN == "" {
		fmt.Println("No DATABASE_DSN configured, running filesystem-only")
	}

	server := web.NewServer(cfg, service, port, host)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting labvision API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
