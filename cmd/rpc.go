package cmd

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/shutdown"
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Run just the HTTP API, without the sync scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("rpc")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rpcChannel := make(chan bool)
		if err := a.startRpcServer(ctx, rpcChannel); err != nil {
			return err
		}
		a.startPrometheus(ctx)

		a.logger.Sugar().Info("Started marketplace indexer rpc")

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()
		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			a.logger.Sugar().Info("Shutting down...")
			rpcChannel <- true
			cancel()
		}, time.Second*5, a.logger)
		return nil
	},
}
