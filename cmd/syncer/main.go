package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"policysync/internal/changelog/handler"
	"policysync/internal/changelog/keys"
	"policysync/internal/changelog/lock"
	changelogmetrics "policysync/internal/changelog/metrics"
	"policysync/internal/changelog/ports"
	"policysync/internal/changelog/service"
	"policysync/internal/changelog/store"
	"policysync/internal/changelog/store/file"
	"policysync/internal/changelog/store/memory"
	pgstore "policysync/internal/changelog/store/postgres"
	redisstore "policysync/internal/changelog/store/redis"
	"policysync/internal/changelog/store/sqlite"
	"policysync/internal/changelog/validation"
	"policysync/internal/platform/config"
	"policysync/internal/platform/httpserver"
	"policysync/internal/platform/logger"
	"policysync/internal/platform/metrics"
	"policysync/internal/platform/postgres"
	platformredis "policysync/internal/platform/redis"
	"policysync/internal/zms"
	"policysync/pkg/platform/audit/publisher"
	"policysync/pkg/platform/audit/store/kafka"
)

var version = "dev"

// main wires high-level dependencies and keeps the process lifecycle small.
// Sync logic lives in internal/changelog.
func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit non-zero if it fails")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, *once))
}

func run(ctx context.Context, once bool) int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start syncer", "error", err)
		return 1
	}
	defer a.close()

	if once {
		if !a.scheduler.RunOnce(ctx) {
			log.Error("sync pass failed")
			return 1
		}
		return 0
	}

	srv := httpserver.New(cfg.Server.Addr, a.router)
	log.Info("starting policysync",
		"addr", cfg.Server.Addr,
		"mode", cfg.Sync.Mode,
		"store", cfg.Store.Backend,
		"interval", cfg.Sync.Interval,
		"version", version,
	)
	if cfg.Server.AdminToken == "" {
		log.Warn("SYNCER_ADMIN_TOKEN is empty; admin routes will reject every request")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return httpserver.Run(gctx, srv, 10*time.Second)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("syncer stopped", "error", err)
		return 1
	}
	log.Info("syncer stopped")
	return 0
}

type app struct {
	scheduler *service.Scheduler
	router    http.Handler
	closers   []func()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	built, err := a.wire(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return built, nil
}

func (a *app) wire(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	backend, err := openBackend(ctx, cfg, redisClient, a)
	if err != nil {
		return nil, err
	}
	changeLog, err := store.New(backend)
	if err != nil {
		return nil, err
	}

	keyProvider, err := keys.LoadFile(cfg.ZMS.PublicKeysFile)
	if err != nil {
		return nil, fmt.Errorf("load zms public keys: %w", err)
	}
	validator, err := validation.New(keyProvider)
	if err != nil {
		return nil, err
	}
	log.Info("loaded zms public keys", "key_ids", keyProvider.IDs())

	syncMetrics := changelogmetrics.New()
	processMetrics := metrics.New(version)

	remote, err := zms.New(cfg.ZMS.URL,
		zms.WithTimeout(cfg.ZMS.Timeout),
		zms.WithLogger(log),
		zms.WithMetrics(syncMetrics),
		zms.WithConcurrency(cfg.ZMS.Concurrency),
	)
	if err != nil {
		return nil, err
	}

	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(syncMetrics),
	}
	auditPublisher, err := openAuditPublisher(ctx, cfg, log, a)
	if err != nil {
		return nil, err
	}
	if auditPublisher != nil {
		serviceOpts = append(serviceOpts, service.WithAuditPublisher(auditPublisher))
	}
	svc, err := service.New(changeLog, validator, serviceOpts...)
	if err != nil {
		return nil, err
	}

	var locker ports.Locker = lock.NewLocal()
	if redisClient != nil {
		locker, err = lock.NewRedis(redisClient.Client, redisClient.Key("lock"), cfg.Sync.LockTTL)
		if err != nil {
			return nil, err
		}
	}
	driver, err := service.NewDriver(svc, service.WithLocker(locker))
	if err != nil {
		return nil, err
	}
	a.scheduler, err = service.NewScheduler(driver, remote, cfg.Sync.Mode,
		service.WithInterval(cfg.Sync.Interval),
		service.WithPassTimeout(cfg.Sync.PassTimeout),
	)
	if err != nil {
		return nil, err
	}

	handlerOpts := []handler.Option{
		handler.WithLogger(log),
		handler.WithBreaker(remote),
		handler.WithMetricsHandler(processMetrics.Handler()),
	}
	if auditPublisher != nil {
		handlerOpts = append(handlerOpts, handler.WithAuditPublisher(auditPublisher))
	}
	h, err := handler.New(a.scheduler, backend, cfg.Server.AdminToken, handlerOpts...)
	if err != nil {
		return nil, err
	}
	a.router = h.Router()
	return a, nil
}

func openBackend(ctx context.Context, cfg config.Config, redisClient *platformredis.Client, a *app) (ports.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := pgstore.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return pgstore.New(db), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case config.BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redis backend selected without REDIS_URL")
		}
		return redisstore.New(redisClient.Client, cfg.Redis.Prefix), nil
	default:
		return file.New(cfg.Store.Root)
	}
}

// openAuditPublisher returns nil when no Kafka brokers are configured; audit
// events are then only logged.
func openAuditPublisher(ctx context.Context, cfg config.Config, log *slog.Logger, a *app) (*publisher.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	sink, err := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sink.Close)
	if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
	}

	pub := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}
