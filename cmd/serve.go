package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skybridgehq/skybridge/internal/board"
	"github.com/skybridgehq/skybridge/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook ingestion server",
	Long: `Run the HTTP server that receives GitHub and Trello webhooks, turns
them into jobs, and serves the read-only status API.

Endpoints:
  POST /webhooks/github     GitHub issues events (HMAC-SHA256 verified)
  POST /webhooks/trello     Trello card moves
  GET  /api/v1/jobs         list jobs
  GET  /api/v1/jobs/{id}    one job
  GET  /api/v1/queue/stats  queue metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := getQueue()
		if err != nil {
			return err
		}
		defer q.Close()

		logger := newLogger()
		ingestor := webhook.NewIngestor(q, board.DefaultListMapping(), logger)
		srv := webhook.NewServer(q, ingestor, viper.GetString("webhook.github_secret"), logger)

		addr := viper.GetString("webhook.addr")
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("webhook server listening", "addr", addr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8090", "Listen address")
	_ = viper.BindPFlag("webhook.addr", serveCmd.Flags().Lookup("addr"))
}
