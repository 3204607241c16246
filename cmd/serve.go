package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/api"
	"github.com/starload/starload/internal/ws"
)

var (
	serveAddr string
	serveDev  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control API",
	Long: `Serve a JSON API for starting and monitoring loads. Load progress,
validation checks and completion are streamed on the /api/ws WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(false)
		if err != nil {
			return err
		}
		defer flush()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := ws.NewHub(eng.Logger)
		go hub.Run(ctx)

		srv := api.New(eng, eng.Logger, serveAddr, api.WithHub(hub), api.WithDevMode(serveDev))
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		fmt.Printf("Control API listening on %s\n", serveAddr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		if err := eng.AbortLoad(); err == nil {
			eng.Logger.Info("aborting running load for shutdown")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "enable permissive CORS")
	rootCmd.AddCommand(serveCmd)
}
