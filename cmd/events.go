package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/internal/logging"
	"github.com/sweetshop/apiserver/internal/mq"
	"github.com/sweetshop/apiserver/internal/services"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log stock events from the configured message broker",
	Long: `Subscribes to STOCK_EVENTS_CHANNEL on MQ_BACKEND and logs every
purchase and restock until interrupted. Usage:

	apiserver events
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(cfg.LogLevel, nil)
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("events requires MQ_BACKEND to be set")
		}
		defer broker.Close()

		return services.NewStockEventWatcher(broker, cfg.MQ.Channel, logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
