package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/go-resurface"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web UI",
	Long: `Serve the JSON API and the embedded web UI. With DEV=1 only the API is
served, for running the UI separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		srv, err := resurface.NewServer(resurface.ServerConfig{
			Engine:      eng,
			CORSOrigins: cfg.Server.CORSOrigins,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		handler := srv.Handler()
		if os.Getenv("DEV") == "" {
			mux := http.NewServeMux()
			mux.Handle("/", resurface.EditorHandler())
			mux.Handle("/api/", srv.Handler())
			mux.Handle("/health", srv.Handler())
			handler = mux
		}

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			logger.Info("starting resurface server", "addr", addr)
			errc <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
