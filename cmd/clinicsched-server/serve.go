package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"clinicsched/backend/internal/config"
	"clinicsched/backend/internal/directory"
	"clinicsched/backend/internal/events"
	"clinicsched/backend/internal/service/appointments"
	"clinicsched/backend/internal/service/availability"
	"clinicsched/backend/internal/service/blocks"
	"clinicsched/backend/internal/service/providers"
	"clinicsched/backend/internal/store"
	"clinicsched/backend/internal/store/memory"
	"clinicsched/backend/internal/store/postgres"
	"clinicsched/backend/internal/telemetry"
	grpcTransport "clinicsched/backend/internal/transport/grpc"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling gRPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, log)
		},
	}
}

// backend is the storage-dependent wiring shared by the RPC services.
type backend struct {
	calendar  store.Calendar
	directory directory.Directory
	checks    []grpcTransport.ReadyCheck
	closers   []func() error
}

func runServer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range be.closers {
			if err := closeFn(); err != nil {
				log.Warn("close failed", slog.Any("err", err))
			}
		}
	}()

	resolver := providers.NewResolver(be.directory)
	// Calendar transactions write events to the outbox; nothing is published in process.
	engine := appointments.NewService(be.calendar, resolver, events.Nop{}, log,
		appointments.WithLocation(cfg.Timezone),
		appointments.WithMaxOccurrences(cfg.MaxOccurrences),
	)
	srv := grpcTransport.NewServer(
		engine,
		availability.NewService(be.calendar, resolver),
		blocks.NewService(be.calendar, resolver),
		log,
	)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterSchedulingServiceServer(grpcServer, srv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr(), err)
	}

	opsServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           grpcTransport.NewOpsHandler(be.checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			shutdown(log, grpcServer, opsServer, cfg.ShutdownTimeout)
			return fmt.Errorf("server stopped with error: %w", err)
		}
	}
	shutdown(log, grpcServer, opsServer, cfg.ShutdownTimeout)
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	static := directory.ParseMappings(cfg.StaticDirectory)

	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn("using in-memory storage; data is lost on restart", slog.Int("locations", len(static)))
		return &backend{
			calendar:  memory.NewCalendar(),
			directory: directory.NewStatic(static),
		}, nil
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	be := &backend{
		calendar: postgres.NewCalendarRepo(db),
		checks:   []grpcTransport.ReadyCheck{{Name: "database", Check: postgres.ReadyCheck(db)}},
		closers:  []func() error{func() error { return postgres.Close(db) }},
	}

	dir := directory.NewPostgres(db)
	for loc, prov := range static {
		if err := dir.Assign(ctx, loc, prov); err != nil {
			return nil, fmt.Errorf("seed directory: %w", err)
		}
	}

	var cache directory.Cache = directory.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cache = directory.NewRedisCache(rdb, cfg.CacheTTL, "clinicsched:directory:")
		be.checks = append(be.checks, grpcTransport.ReadyCheck{Name: "redis", Check: directory.ReadyCheck(rdb)})
		be.closers = append(be.closers, rdb.Close)
	}
	be.directory = directory.NewCached(dir, cache, log)
	return be, nil
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, err
	}
	return db, nil
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, ops *http.Server, timeout time.Duration) {
	log.Info("shutting down", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ops.Shutdown(ctx); err != nil {
		log.Warn("ops server shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
