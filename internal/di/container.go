package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefront-field/quote-api/internal/platform/config"
	"github.com/storefront-field/quote-api/internal/pricing"
	"github.com/storefront-field/quote-api/internal/repositories"
	"github.com/storefront-field/quote-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Quotes services.QuoteService
	Orders services.OrderService
	System services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option supplies infrastructure that is built outside the container.
type Option func(*containerOptions)

type containerOptions struct {
	payments services.PaymentGateway
	events   services.OrderEventPublisher
	logger   *zap.Logger
	build    services.BuildInfo
	clock    func() time.Time
	idGen    func() string
}

// WithPaymentGateway wires the PSP used for order payments. Without one, orders are placed
// without initiating payment.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *containerOptions) {
		o.payments = gateway
	}
}

// WithEventPublisher wires the order event sink.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithLogger sets the base logger services write structured events to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo sets the metadata reported by the system service.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *containerOptions) {
		o.idGen = gen
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// NewQuoter builds the pricing core from configuration.
func NewQuoter(cfg config.PricingConfig, clock func() time.Time) *pricing.Quoter {
	tiers := make(pricing.DeliveryFeeTable, 0, len(cfg.DeliveryTiers))
	for _, tier := range cfg.DeliveryTiers {
		tiers = append(tiers, pricing.DeliveryTier{MinSubtotal: tier.MinSubtotal, Fee: tier.Fee})
	}
	return pricing.NewQuoter(pricing.QuoterConfig{
		HomeCountry: cfg.HomeCountry,
		Currency:    cfg.Currency,
		TaxRates: pricing.TaxRates{
			DefaultPercent: cfg.DefaultTaxPercent,
			ByCategory:     cfg.CategoryTaxPercent,
		},
		DeliveryFees: tiers,
		Now:          clock,
	})
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services

	if healthRepo := reg.Health(); healthRepo != nil {
		build := opts.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            opts.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	quoteSvc, err := services.NewQuoteService(services.QuoteServiceDeps{
		Offers:          reg.Offers(),
		Products:        reg.Products(),
		Sellers:         reg.Sellers(),
		Destinations:    reg.Destinations(),
		Quoter:          NewQuoter(cfg.Pricing, opts.clock),
		Categories:      pricing.NewCategoryAllowList(cfg.Catalog.Categories),
		SnapshotTimeout: cfg.Catalog.SnapshotTimeout,
		Clock:           opts.clock,
		Logger:          EventLogger(opts.logger.Named("quotes")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}
	svc.Quotes = quoteSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Quotes:      quoteSvc,
		Payments:    opts.payments,
		Clock:       opts.clock,
		IDGenerator: opts.idGen,
		Events:      opts.events,
		Logger:      EventLogger(opts.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}

// EventLogger adapts a zap logger to the structured event callback used by services and
// payment providers.
func EventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
