package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/fieldlog/internal/config"
	"github.com/rpattn/fieldlog/internal/db"
	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/export"
	"github.com/rpattn/fieldlog/internal/fieldlog"
	"github.com/rpattn/fieldlog/internal/httpapi"
	"github.com/rpattn/fieldlog/internal/repository"
	"github.com/rpattn/fieldlog/internal/sink/kafka"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}

	serverCfg, err := config.LoadServerConfig(configPath, nil)
	if err != nil {
		panic(err)
	}
	log, err := newLogger(serverCfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(configPath, serverCfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

func run(configPath string, serverCfg config.ServerConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := config.LoadDBConfig(configPath, log)
	if err != nil {
		return err
	}
	conn, err := db.NewConnection(ctx, dbCfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.RunMigrations(conn.Pool, log); err != nil {
		return err
	}

	schemas := repository.NewEntitySchemaRepository(conn.Pool)
	entities := repository.NewEntityRepository(conn.Pool)
	logs := repository.NewFieldLogRepository(conn.Pool, log)

	callbacks := fieldlog.NewCallbackRegistry()
	if len(serverCfg.Kafka.Brokers) > 0 {
		client, err := kafka.NewClient(serverCfg.Kafka.Brokers, serverCfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer client.Close()

		publisher := kafka.NewPublisher(client, serverCfg.Kafka.Topic, kafka.WithLogger(log))
		callbacks.MustRegister(kafka.CallbackName, publisher.Publish)
		log.Info("kafka publishing enabled", zap.Strings("brokers", serverCfg.Kafka.Brokers), zap.String("topic", serverCfg.Kafka.Topic))
	}

	loader := func(ctx context.Context) (fieldlog.Settings, domain.SchemaCatalog, error) {
		settings, err := config.LoadTrackingSettings(configPath, log)
		if err != nil {
			return fieldlog.Settings{}, nil, err
		}
		list, err := schemas.List(ctx)
		if err != nil {
			return fieldlog.Settings{}, nil, err
		}
		return settings, domain.NewStaticCatalog(list...), nil
	}
	resolver := fieldlog.NewResolver(callbacks, fieldlog.WithResolverLogger(log))
	registry, err := fieldlog.NewRegistryStore(ctx, resolver, loader, log)
	if err != nil {
		return err
	}

	tracker := fieldlog.NewTracker(registry, entities, logs,
		fieldlog.WithLogger(log),
		fieldlog.WithMetrics(fieldlog.NewMetrics(prometheus.DefaultRegisterer)),
	)
	tracked := fieldlog.NewTrackedEntityRepository(entities, tracker, logs)

	exports := export.NewHTTPHandler(export.NewService(logs,
		export.WithMaxRows(serverCfg.Export.MaxRows),
		export.WithCodec(registry.Load().Codec()),
		export.WithLogger(log),
	), entities)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	httpapi.New(tracked, schemas, logs, registry, exports, log).Register(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   serverCfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	server := httpapi.Server(serverCfg.Address, corsHandler.Handler(router))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("address", serverCfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
