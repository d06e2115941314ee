package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogurasousui/staff-bot/internal/adapters/cooldown"
	"github.com/ogurasousui/staff-bot/internal/adapters/grpc/handler"
	"github.com/ogurasousui/staff-bot/internal/adapters/grpc/interceptor"
	"github.com/ogurasousui/staff-bot/internal/adapters/httpapi"
	"github.com/ogurasousui/staff-bot/internal/adapters/notify"
	"github.com/ogurasousui/staff-bot/internal/adapters/repository/jsonfile"
	"github.com/ogurasousui/staff-bot/internal/adapters/repository/postgres"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/ogurasousui/staff-bot/internal/core/hello"
	"github.com/ogurasousui/staff-bot/internal/platform/config"
	pg "github.com/ogurasousui/staff-bot/internal/platform/db/postgres"
	"github.com/ogurasousui/staff-bot/internal/platform/httpserver"
	"github.com/ogurasousui/staff-bot/internal/platform/logger"
	"github.com/ogurasousui/staff-bot/internal/platform/metrics"
	platformredis "github.com/ogurasousui/staff-bot/internal/platform/redis"
	"github.com/ogurasousui/staff-bot/internal/platform/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

// app は起動時に組み立てた依存関係と、終了時の後始末を保持します。
type app struct {
	repo     employee.Repository
	tx       employee.TransactionManager
	limiter  employee.Limiter
	notifier employee.Notifier
	checks   map[string]httpapi.ReadinessCheck
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a := &app{checks: map[string]httpapi.ReadinessCheck{}}
	defer a.close()

	if err := a.setupStorage(ctx, cfg, m, log); err != nil {
		return err
	}
	if err := a.setupCooldown(ctx, cfg.Redis, log); err != nil {
		return err
	}
	if err := a.setupNotifier(ctx, cfg.Kafka, log); err != nil {
		return err
	}

	svc := employee.NewService(a.repo, nil, a.tx, policyFromConfig(cfg),
		employee.WithNotifier(a.notifier),
		employee.WithLimiter(a.limiter),
		employee.WithLogger(logger.Component(log, "employee")),
	)
	commands := handler.NewCommandHandler(svc, hello.NewService(), m, logger.Component(log, "command"))

	grpcServer := server.New(cfg.Server.ListenAddr, commands, grpc.ChainUnaryInterceptor(
		interceptor.Logging(logger.Component(log, "grpc")),
		interceptor.NewAuthenticator(cfg.Server.AuthSecret).Unary(),
	))
	httpSrv := httpserver.New(cfg.HTTP.ListenAddr, httpapi.New(registry, a.checks, logger.Component(log, "http")).Router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("gRPC server listening")
		return grpcServer.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("HTTP server listening")
		return httpserver.Run(gctx, httpSrv)
	})

	return g.Wait()
}

func (a *app) setupStorage(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) error {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		pool, err := pg.NewPool(ctx, cfg.Database, logger.Component(log, "postgres"))
		if err != nil {
			return fmt.Errorf("initialize database pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.repo = postgres.NewEmployeeRepository(pool, cfg.Storage.MaxFieldLength)
		a.tx = pg.NewTransactionManager(pool)
		a.checks["postgres"] = pool.Ping
	default:
		store, err := jsonfile.Open(cfg.Storage.Path,
			jsonfile.WithLogger(logger.Component(log, "store")),
			jsonfile.WithObserver(m),
			jsonfile.WithMaxFieldLength(cfg.Storage.MaxFieldLength),
		)
		if err != nil {
			return fmt.Errorf("open employee store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to flush employee store")
			}
		})
		a.repo = store
	}
	return nil
}

func (a *app) setupCooldown(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) error {
	client, err := platformredis.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	if client == nil {
		a.limiter = cooldown.NewMemory(time.Now)
		return nil
	}

	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	})
	a.limiter = cooldown.NewRedis(client)
	a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return nil
}

func (a *app) setupNotifier(ctx context.Context, cfg config.KafkaConfig, log zerolog.Logger) error {
	if !cfg.Enabled() {
		a.notifier = notify.NewLog(logger.Component(log, "notify"))
		return nil
	}

	client, err := notify.NewKafkaClient(cfg.Brokers, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	if err := notify.EnsureTopic(ctx, kadm.NewClient(client), cfg.Topic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		return fmt.Errorf("ensure notice topic: %w", err)
	}

	a.notifier = notify.NewKafka(client, cfg.Topic)
	a.checks["kafka"] = client.Ping
	return nil
}

func policyFromConfig(cfg *config.Config) employee.Policy {
	cooldowns := make(map[employee.Command]time.Duration, len(cfg.Policy.Cooldowns))
	for name, d := range cfg.Policy.Cooldowns {
		cooldowns[employee.Command(name)] = d
	}

	return employee.Policy{
		AllowedRoleIDs:  cfg.Policy.AllowedRoleIDs,
		DismissRoleIDs:  cfg.Policy.DismissRoleIDs,
		MaxWarnings:     cfg.Policy.MaxWarnings,
		MaxFieldLength:  cfg.Storage.MaxFieldLength,
		DefaultCooldown: cfg.Policy.DefaultCooldown,
		Cooldowns:       cooldowns,
	}
}
