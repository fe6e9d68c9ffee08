package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/back-orders/api/internal/notifications"
	"github.com/back-orders/api/internal/payments"
	"github.com/back-orders/api/internal/platform/auth"
	"github.com/back-orders/api/internal/platform/config"
	pfirestore "github.com/back-orders/api/internal/platform/firestore"
	"github.com/back-orders/api/internal/platform/requestctx"
	"github.com/back-orders/api/internal/repositories"
	firestorerepo "github.com/back-orders/api/internal/repositories/firestore"
	"github.com/back-orders/api/internal/repositories/memory"
	"github.com/back-orders/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Orders   services.OrderService
	Queries  services.OrderQueryService
	Receipts services.ReceiptService
}

// Repositories exposes the persistence ports selected by the storage backend.
type Repositories struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Counters   repositories.CounterRepository
	UnitOfWork repositories.UnitOfWork
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Repositories  Repositories
	Services      Services
	Authenticator *auth.Authenticator

	firestore *pfirestore.Provider
	memory    *memory.Store
	closers   []func(ctx context.Context) error
}

// Option customises container assembly, mainly for tests.
type Option func(*containerOptions)

type containerOptions struct {
	logger   *zap.Logger
	gateway  payments.Gateway
	notifier notifications.Notifier
	clock    func() time.Time
}

// WithLogger sets the logger used for service events and the notification fallback.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGateway overrides the payment gateway selected from configuration.
func WithGateway(gateway payments.Gateway) Option {
	return func(o *containerOptions) { o.gateway = gateway }
}

// WithNotifier overrides the notifier selected from configuration.
func WithNotifier(notifier notifications.Notifier) Option {
	return func(o *containerOptions) { o.notifier = notifier }
}

// WithClock overrides the time source handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies from configuration: the
// storage backend, the payment gateway, the notification channel, the order
// services, and the bearer token authenticator.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	c := &Container{Config: cfg}

	if err := c.buildRepositories(cfg); err != nil {
		return nil, err
	}

	gateway := options.gateway
	if gateway == nil {
		var err error
		gateway, err = buildGateway(cfg.Payments, options.logger)
		if err != nil {
			return nil, err
		}
	}

	notifier := options.notifier
	if notifier == nil {
		var err error
		notifier, err = c.buildNotifier(ctx, cfg.PubSub, options.logger)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(c.Repositories, gateway, notifier, options)
	if err != nil {
		return nil, err
	}
	c.Services = svc

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}
	c.Authenticator = auth.NewAuthenticator(verifier)

	return c, nil
}

// Firestore returns the provider backing the firestore storage backend, or
// nil when the container runs on the in-memory store.
func (c *Container) Firestore() *pfirestore.Provider { return c.firestore }

// Memory returns the in-memory store, or nil when the container runs on firestore.
// Tests and the demo seeding path use it to arrange catalog fixtures.
func (c *Container) Memory() *memory.Store { return c.memory }

// Close releases held resources in reverse acquisition order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildRepositories(cfg config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		store := memory.NewStore()
		c.memory = store
		c.Repositories = Repositories{
			Orders:     store.Orders(),
			Products:   store.Products(),
			Counters:   store.Counters(),
			UnitOfWork: store,
		}
		return nil
	case config.StorageBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.firestore = provider
		c.closers = append(c.closers, provider.Close)

		counters, err := firestorerepo.NewCounterRepository(provider)
		if err != nil {
			return fmt.Errorf("build counter repository: %w", err)
		}
		orders, err := firestorerepo.NewOrderRepository(provider, counters)
		if err != nil {
			return fmt.Errorf("build order repository: %w", err)
		}
		products, err := firestorerepo.NewProductRepository(provider)
		if err != nil {
			return fmt.Errorf("build product repository: %w", err)
		}
		unit, err := firestorerepo.NewUnitOfWork(provider)
		if err != nil {
			return fmt.Errorf("build unit of work: %w", err)
		}
		c.Repositories = Repositories{
			Orders:     orders,
			Products:   products,
			Counters:   counters,
			UnitOfWork: unit,
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildGateway(cfg config.PaymentsConfig, logger *zap.Logger) (payments.Gateway, error) {
	switch cfg.Mode {
	case config.PaymentsModeSimulated:
		return payments.NewSimulatedGateway(), nil
	case config.PaymentsModeStripe:
		gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey:        cfg.StripeAPIKey,
			PaymentMethod: cfg.StripePaymentMethod,
			Currency:      cfg.Currency,
			Logger:        payments.StripeLogger(eventLogger(logger)),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway: %w", err)
		}
		return gateway, nil
	default:
		return nil, fmt.Errorf("unknown payments mode %q", cfg.Mode)
	}
}

func (c *Container) buildNotifier(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (notifications.Notifier, error) {
	if cfg.TopicID == "" {
		return notifications.NewLogNotifier(logger), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.Timeout = 10 * time.Second
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return nil
	})

	notifier, err := notifications.NewPubSubNotifier(topic)
	if err != nil {
		return nil, fmt.Errorf("build pubsub notifier: %w", err)
	}
	return notifier, nil
}

func buildServices(repos Repositories, gateway payments.Gateway, notifier notifications.Notifier, options containerOptions) (Services, error) {
	var svc Services

	events := eventLogger(options.logger)

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     repos.Orders,
		Products:   repos.Products,
		Gateway:    gateway,
		Notifier:   notifier,
		UnitOfWork: repos.UnitOfWork,
		Clock:      options.clock,
		Logger:     events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	querySvc, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders: repos.Orders,
		Logger: events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order query service: %w", err)
	}
	svc.Queries = querySvc

	receiptSvc, err := services.NewReceiptService(services.ReceiptServiceDeps{
		Orders:   repos.Orders,
		Products: repos.Products,
		Clock:    options.clock,
		Logger:   events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build receipt service: %w", err)
	}
	svc.Receipts = receiptSvc

	return svc, nil
}

// eventLogger adapts the zap logger to the event callback services expect,
// preferring the request-scoped logger when one travels on the context.
func eventLogger(fallback *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
