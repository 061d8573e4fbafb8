package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studex/apiserver/config"
	"github.com/studex/apiserver/internal/db"
	"github.com/studex/apiserver/internal/mq"
	"github.com/studex/apiserver/internal/server"
)

// workerCmd consumes payment completion jobs outside the API process.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the payment completion worker",
	Long: `Consumes payment completion jobs from the configured broker. Use it with
MQ_BACKEND=rabbitmq or pubsub and PAYMENT_WORKER_INPROCESS=false.

	studex worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.MQ.Backend == mq.BackendMemory {
			return fmt.Errorf("the standalone worker needs a shared broker, MQ_BACKEND is %q", cfg.MQ.Backend)
		}

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer dbConn.Close()

		backend, err := mq.NewBackend(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open message broker: %w", err)
		}
		broker := mq.New(backend)
		defer func() {
			if err := broker.Close(); err != nil {
				logger.Warn("close broker", slog.Any("error", err))
			}
		}()

		worker := server.NewPaymentWorker(dbConn, logger)
		return worker.Run(ctx, broker)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
