package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketplace-svc/auth"
	"marketplace-svc/cache"
	"marketplace-svc/config"
	"marketplace-svc/database"
	"marketplace-svc/idgen"
	"marketplace-svc/kafka"
	"marketplace-svc/ledger"
	"marketplace-svc/middleware"
	"marketplace-svc/processor"
	"marketplace-svc/rabbitmq"
	"marketplace-svc/rpc"
	"marketplace-svc/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const healthProbeInterval = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health server",
	Long: `Run the marketplace service.

All settings come from the environment (optionally seeded from .env):
STORAGE_BACKEND selects memory, bolt or postgres; EVENT_BUS selects none,
kafka or rabbitmq; PROCESSOR_NAME selects mock, stripe or omise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

type closer struct {
	name  string
	close func() error
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// closed in reverse order on shutdown, or as soon as startup fails
	var closers []closer
	var restSrv *http.Server
	defer func() {
		if err == nil {
			return
		}
		logger.Error("Startup failed, releasing resources", zap.Error(err))
		if restSrv != nil {
			_ = restSrv.Close()
		}
		closeAll(closers, logger)
		shutdownTracing()
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closer{"store", st.Close})

	calc, err := newCalculator(cfg.CommissionRatesFile)
	if err != nil {
		return fmt.Errorf("failed to load commission rates: %w", err)
	}
	ids, err := idgen.New(cfg.NodeID)
	if err != nil {
		return err
	}

	var intents store.IntentStore = st
	if cfg.Redis.Enabled {
		redisClient, err := cache.InitRedis(cfg.Redis, logger)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"redis", redisClient.Close})
		intents = cache.NewIntentStore(st, redisClient, cfg.Redis.TTL, logger)
	}

	publisher, publisherCloser, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	if publisherCloser != nil {
		closers = append(closers, closer{cfg.EventBus + " publisher", publisherCloser.Close})
	}

	proc, err := processor.New(cfg.Processor, logger)
	if err != nil {
		return err
	}
	l := ledger.New(intents, proc, publisher, logger)

	if cfg.Kafka.ReportsEnabled {
		consumer := kafka.NewReportConsumer(cfg.Kafka, l, logger)
		closers = append(closers, closer{"kafka report consumer", consumer.Close})
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("Kafka report consumer stopped", zap.Error(err))
			}
		}()
	}

	router := newRouter(routerDeps{
		serviceName: cfg.ServiceName,
		logger:      logger,
		issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpire),
		ledger:      l,
		calc:        calc,
		users:       st,
		listings:    st,
		ids:         ids,
	})

	restSrv = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		if err := restSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("REST server failed", zap.Error(err))
			stop()
		}
	}()
	logger.Info("REST API started", zap.String("addr", cfg.HTTPAddr))

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port: %w", err)
	}
	healthService := rpc.NewHealthService(cfg.ServiceName, st, logger)
	go healthService.Run(ctx, healthProbeInterval)
	grpcServer := rpc.NewServer(healthService)
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()
	logger.Info("gRPC server started", zap.String("addr", cfg.GRPCAddr))

	<-ctx.Done()
	gracefulShutdown(restSrv, grpcServer, closers, shutdownTracing, logger)
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StorageBackend {
	case "postgres":
		db, err := database.InitDB(cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
		return store.NewPostgres(db), nil
	case "bolt":
		st, err := store.NewBolt(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		logger.Info("Bolt store opened", zap.String("path", cfg.BoltPath))
		return st, nil
	default:
		logger.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}
}

// openPublisher returns a nil publisher when no event bus is configured.
func openPublisher(cfg config.Config, logger *zap.Logger) (ledger.Publisher, io.Closer, error) {
	switch cfg.EventBus {
	case "kafka":
		producer, err := kafka.InitProducer(cfg.Kafka, logger)
		if err != nil {
			return nil, nil, err
		}
		p := kafka.NewPublisher(producer, cfg.Kafka.Topic, logger)
		return p, p, nil
	case "rabbitmq":
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, nil
	}
}

// gracefulShutdown stops the servers, then releases resources newest first.
func gracefulShutdown(
	restSrv *http.Server,
	grpcServer *grpc.Server,
	closers []closer,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	closeAll(closers, logger)
	shutdownTracing()
	logger.Info("Marketplace service exited gracefully")
}

func closeAll(closers []closer, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.close(); err != nil {
			logger.Error("Failed to close "+c.name, zap.Error(err))
		} else {
			logger.Info("Closed " + c.name)
		}
	}
}
