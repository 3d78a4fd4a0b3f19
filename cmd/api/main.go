package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"example.com/formcoach/internal/api"
	"example.com/formcoach/internal/bootstrap"
	"example.com/formcoach/internal/config"
	"example.com/formcoach/internal/observability"
	"example.com/formcoach/internal/outbox"
	httptransport "example.com/formcoach/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := observability.NewLogger("info", false)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open result store")
	}
	defer store.Close()

	var dispatcher *outbox.Dispatcher
	if cfg.OutboxActive() {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(store.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(observability.Component(logger, "outbox")))
		go dispatcher.Start(ctx)
	}

	service, err := bootstrap.NewService(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}

	uploads, err := api.NewUploadStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	handler := api.NewHandler(service, uploads, api.WithLogger(observability.Component(logger, "api")))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}, newRouter(cfg, handler, logger))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).Str("store", cfg.StoreDriver).Str("chat", cfg.ChatProvider).Msg("formcoach api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

func newRouter(cfg config.Config, handler *api.Handler, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	return httptransport.RequestLogger(observability.Component(logger, "http"), httptransport.CORS(cfg.CORSOrigin, mux))
}

// writeTimeout covers the longest an upload can block: waiting for an engine slot, then the run itself.
func writeTimeout(cfg config.Config) time.Duration {
	return cfg.AnalyzerQueueTimeout + cfg.AnalyzerTimeout + 30*time.Second
}
