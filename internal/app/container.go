package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	billingApp "github.com/felixgeelhaar/carepay/internal/billing/application"
	billingCommands "github.com/felixgeelhaar/carepay/internal/billing/application/commands"
	billingQueries "github.com/felixgeelhaar/carepay/internal/billing/application/queries"
	billingDomain "github.com/felixgeelhaar/carepay/internal/billing/domain"
	billingPersistence "github.com/felixgeelhaar/carepay/internal/billing/infrastructure/persistence"
	identityDomain "github.com/felixgeelhaar/carepay/internal/identity/domain"
	identityPersistence "github.com/felixgeelhaar/carepay/internal/identity/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/carepay/internal/shared/application"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/carepay/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/metrics"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/carepay/internal/shared/infrastructure/ratelimit"
	"github.com/felixgeelhaar/carepay/pkg/config"
	"github.com/felixgeelhaar/carepay/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "carepay"

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis, set only when the rate limiter is backed by Redis
	RedisClient *redis.Client

	// Observability
	Metrics *metrics.Prometheus
	Health  *observability.HealthRegistry

	// Repositories
	TransactionRepo  billingDomain.TransactionRepository
	SubscriptionRepo billingDomain.SubscriptionRepository
	PrincipalRepo    identityDomain.PrincipalRepository
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	Prices       billingDomain.PriceTable
	CancelPolicy billingDomain.CancelPolicy
	Limiter      ratelimit.Limiter

	// Billing command handlers
	Granter                   *billingCommands.EntitlementGranter
	CreateTransactionHandler  *billingCommands.CreateTransactionHandler
	PerformTransactionHandler *billingCommands.PerformTransactionHandler
	CancelTransactionHandler  *billingCommands.CancelTransactionHandler
	GrantReconciler           *billingCommands.GrantReconciler

	// Billing query handlers
	CheckPerformHandler     *billingQueries.CheckPerformTransactionHandler
	CheckTransactionHandler *billingQueries.CheckTransactionHandler
	ListTransactionsHandler *billingQueries.ListTransactionsHandler
	GetTransactionHandler   *billingQueries.GetTransactionHandler
	SummaryHandler          *billingQueries.SummaryHandler

	BillingService *billingApp.Service
}

// NewContainer opens the configured database and wires every handler.
// SQLite schemas are migrated on open; PostgreSQL is migrated by "carepay migrate".
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:          database.Driver(cfg.DatabaseDriver),
		URL:             cfg.DatabaseURL,
		SQLitePath:      cfg.SQLitePath,
		ApplicationName: "carepay",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database", "driver", conn.Driver())

	if conn.Driver() == database.DriverSQLite {
		if err := migrations.Run(ctx, conn, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	c, err := newContainer(ctx, cfg, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func newContainer(ctx context.Context, cfg *config.Config, conn database.Connection, logger *slog.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DBConn:   conn,
		DBDriver: conn.Driver(),
		Metrics:  metrics.NewPrometheus(MetricsNamespace, logger),
		Health:   observability.NewHealthRegistry(),
	}

	prices, err := billingDomain.NewPriceTable(cfg.PriceTable())
	if err != nil {
		return nil, fmt.Errorf("invalid plan prices: %w", err)
	}
	c.Prices = prices

	policy, err := billingDomain.ParseCancelPolicy(cfg.PaymeCancelPerformed)
	if err != nil {
		return nil, err
	}
	c.CancelPolicy = policy

	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))

	if err := c.initLimiter(ctx); err != nil {
		return nil, err
	}

	// Create repositories
	c.TransactionRepo = billingPersistence.NewSQLTransactionRepository(conn)
	c.SubscriptionRepo = billingPersistence.NewSQLSubscriptionRepository(conn)
	c.PrincipalRepo = identityPersistence.NewSQLPrincipalRepository(conn)
	c.OutboxRepo = outbox.NewSQLRepository(conn)
	c.UnitOfWork = database.NewUnitOfWork(conn)

	// Create billing command handlers
	c.Granter = billingCommands.NewEntitlementGranter(
		c.TransactionRepo, c.PrincipalRepo, c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork,
		cfg.SubscriptionPeriod, logger,
	)
	c.CreateTransactionHandler = billingCommands.NewCreateTransactionHandler(
		c.TransactionRepo, c.PrincipalRepo, c.Prices, c.OutboxRepo, c.UnitOfWork, logger,
	)
	c.PerformTransactionHandler = billingCommands.NewPerformTransactionHandler(
		c.TransactionRepo, c.Granter, c.OutboxRepo, c.UnitOfWork, logger,
	)
	c.CancelTransactionHandler = billingCommands.NewCancelTransactionHandler(
		c.TransactionRepo, c.PrincipalRepo, c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork, c.CancelPolicy, logger,
	)
	c.GrantReconciler = billingCommands.NewGrantReconciler(c.TransactionRepo, c.Granter, billingCommands.ReconcilerConfig{
		Interval:  cfg.ReconcileInterval,
		BatchSize: cfg.ReconcileBatchSize,
		MinAge:    cfg.ReconcileMinAge,
	}, logger).WithMetrics(c.Metrics)

	// Create billing query handlers
	c.CheckPerformHandler = billingQueries.NewCheckPerformTransactionHandler(c.PrincipalRepo, c.Prices)
	c.CheckTransactionHandler = billingQueries.NewCheckTransactionHandler(c.TransactionRepo)
	c.ListTransactionsHandler = billingQueries.NewListTransactionsHandler(c.TransactionRepo)
	c.GetTransactionHandler = billingQueries.NewGetTransactionHandler(c.TransactionRepo)
	c.SummaryHandler = billingQueries.NewSummaryHandler(c.TransactionRepo)

	c.BillingService = billingApp.NewService(c.PrincipalRepo, c.SubscriptionRepo)

	return c, nil
}

// initLimiter selects the callback rate limiter. Outside production an
// unreachable Redis falls back to process memory.
func (c *Container) initLimiter(ctx context.Context) error {
	limits := ratelimit.Config{
		Window:      c.Config.RateLimitWindow,
		MaxRequests: c.Config.RateLimitMax,
	}

	if c.Config.RateLimitBackend != "redis" {
		c.Limiter = ratelimit.NewMemoryLimiter(limits)
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if c.Config.IsProduction() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, rate limiter will use process memory", "error", err)
		c.Limiter = ratelimit.NewMemoryLimiter(limits)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		if c.Config.IsProduction() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, rate limiter will use process memory", "error", err)
		c.Limiter = ratelimit.NewMemoryLimiter(limits)
		return nil
	}

	c.RedisClient = client
	c.Limiter = ratelimit.NewRedisLimiter(client, limits, "carepay:ratelimit:payme:")
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

// NewEventPublisher builds the configured broker publisher.
func (c *Container) NewEventPublisher() (eventbus.Publisher, error) {
	return eventbus.New(eventbus.Config{
		Driver:                  eventbus.Driver(c.Config.EventBusDriver),
		RabbitMQURL:             c.Config.RabbitMQURL,
		Exchange:                eventbus.DefaultExchange,
		KafkaBrokers:            c.Config.KafkaBrokers,
		KafkaTopic:              c.Config.KafkaTopic,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}, c.Logger)
}

// Close releases the database and Redis connections.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing redis client", "error", err)
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database", "error", err)
		}
	}
}
