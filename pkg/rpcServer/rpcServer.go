// Package rpcServer exposes the indexer and the listing query API over HTTP.
package rpcServer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/marketplace-indexer/pkg/indexer"
	"github.com/Layr-Labs/marketplace-indexer/pkg/metrics"
	"github.com/Layr-Labs/marketplace-indexer/pkg/service/listingsDataService"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	shutdownTimeout  = 5 * time.Second
	syncEventsBuffer = 10

	// AdminTokenHeader carries the admin token on /v1/admin routes.
	AdminTokenHeader = "X-Indexer-Token"
)

// IndexerService is the part of the indexer the HTTP handlers drive.
type IndexerService interface {
	Sync(ctx context.Context, opts *indexer.SyncOptions) (*indexer.SyncResult, error)
	ReindexFrom(ctx context.Context, height uint64) (*indexer.SyncResult, error)
	ClearAll(ctx context.Context) error
	GetStatus(ctx context.Context) (*indexer.Status, error)
	ScanRecent(ctx context.Context, lookback uint64) (*indexer.LiveScanResult, error)
}

type RpcServerConfig struct {
	HttpPort       int
	AllowedOrigins []string
	// AdminToken must match AdminTokenHeader on admin routes. When empty the
	// admin routes answer 401 to everyone.
	AdminToken     string
}

type RpcServer struct {
	Logger              *zap.Logger
	rpcConfig           *RpcServerConfig
	indexer             IndexerService
	listingsDataService *listingsDataService.ListingsDataService
	eventBus            eventBusTypes.IEventBus
	metricsSink         *metrics.MetricsSink

	router   *mux.Router
	lastSync atomic.Pointer[eventBusTypes.SyncCompletedData]
}

func NewRpcServer(
	config *RpcServerConfig,
	idx IndexerService,
	lds *listingsDataService.ListingsDataService,
	eb eventBusTypes.IEventBus,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *RpcServer {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	server := &RpcServer{
		Logger:              l,
		rpcConfig:           config,
		indexer:             idx,
		listingsDataService: lds,
		eventBus:            eb,
		metricsSink:         ms,
		router:              mux.NewRouter(),
	}
	server.setupRoutes()
	return server
}

func (s *RpcServer) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/indexer/sync", s.handleSync).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/indexer/status", s.handleStatus).Methods(http.MethodGet)

	v1.HandleFunc("/listings/active", s.handleListActive).Methods(http.MethodGet)
	v1.HandleFunc("/listings/live", s.handleListLive).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	admin.HandleFunc("/reindex", s.handleReindex).Methods(http.MethodPost)

	s.router.Use(s.metricsMiddleware)
}

// Handler returns the router wrapped in the CORS policy.
func (s *RpcServer) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.rpcConfig.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", AdminTokenHeader},
		MaxAge:         3600,
	}).Handler(s.router)
}

// Start begins listening and returns once the port is bound. The server stops
// when ctx is done or a value is sent on shutdownChan.
func (s *RpcServer) Start(ctx context.Context, shutdownChan chan bool) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.rpcConfig.HttpPort))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", s.rpcConfig.HttpPort)
	}

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listenCtx, cancel := context.WithCancel(ctx)
	s.ListenForSyncEvents(listenCtx)

	go func() {
		s.Logger.Sugar().Infow("Starting HTTP server", zap.Int("port", s.rpcConfig.HttpPort))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Sugar().Errorw("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		select {
		case <-shutdownChan:
		case <-ctx.Done():
		}
		s.Logger.Sugar().Infow("Shutting down HTTP server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.Logger.Sugar().Errorw("Failed to shut down HTTP server", zap.Error(err))
		}
	}()
	return nil
}

// ListenForSyncEvents records the most recent completed pass for the status
// route until ctx is done.
func (s *RpcServer) ListenForSyncEvents(ctx context.Context) {
	if s.eventBus == nil {
		return
	}
	consumer := &eventBusTypes.Consumer{
		Id:      "rpc-server-last-sync",
		Context: ctx,
		Channel: make(chan *eventBusTypes.Event, syncEventsBuffer),
	}
	s.eventBus.Subscribe(consumer)

	go func() {
		defer s.eventBus.Unsubscribe(consumer)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-consumer.Channel:
				if event.Name != eventBusTypes.Event_SyncCompleted {
					continue
				}
				if data, ok := event.Data.(*eventBusTypes.SyncCompletedData); ok {
					s.lastSync.Store(data)
				}
			}
		}
	}()
}
