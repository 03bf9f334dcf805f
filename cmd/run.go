package cmd

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics/prometheus"
	"github.com/Layr-Labs/marketplace-indexer/pkg/rpcServer"
	"github.com/Layr-Labs/marketplace-indexer/pkg/scheduler"
	"github.com/Layr-Labs/marketplace-indexer/pkg/shutdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("run")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := a.verifyChainId(ctx); err != nil {
			a.logger.Sugar().Errorw("Chain id check failed", zap.Error(err))
			return err
		}

		rpcChannel := make(chan bool)
		if err := a.startRpcServer(ctx, rpcChannel); err != nil {
			return err
		}
		a.startPrometheus(ctx)

		var sched *scheduler.Scheduler
		schedulerDone := make(chan struct{})
		if a.cfg.IndexerConfig.SyncInterval > 0 {
			sched = scheduler.NewScheduler(&scheduler.SchedulerConfig{
				Interval: a.cfg.IndexerConfig.SyncInterval,
			}, a.indexer, a.logger)
			go func() {
				sched.Start(ctx)
				close(schedulerDone)
			}()
		} else {
			a.logger.Sugar().Infow("Sync interval is 0, scheduler disabled")
			close(schedulerDone)
		}

		a.logger.Sugar().Info("Started marketplace indexer")

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()
		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			a.logger.Sugar().Info("Shutting down...")
			if sched != nil {
				sched.ShutdownChan <- true
			}
			rpcChannel <- true
			cancel()
			<-schedulerDone
		}, 30*time.Second, a.logger)
		return nil
	},
}

func (a *app) startRpcServer(ctx context.Context, rpcChannel chan bool) error {
	rpc := rpcServer.NewRpcServer(&rpcServer.RpcServerConfig{
		HttpPort:   a.cfg.RpcConfig.HttpPort,
		AdminToken: a.cfg.RpcConfig.AdminToken,
	}, a.indexer, a.listings, a.eventBus, a.metricsSink, a.logger)

	if a.cfg.RpcConfig.AdminToken == "" {
		a.logger.Sugar().Warnw("No admin token configured, admin routes will reject every request",
			zap.String("flag", config.RpcAdminToken),
		)
	}
	if err := rpc.Start(ctx, rpcChannel); err != nil {
		a.logger.Sugar().Errorw("Failed to start RPC server", zap.Error(err))
		return err
	}
	return nil
}

func (a *app) startPrometheus(ctx context.Context) {
	if !a.cfg.PrometheusConfig.Enabled {
		return
	}
	server := prometheus.StartPrometheusServer(a.cfg.PrometheusConfig.Port, a.promRegistry, a.logger)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
