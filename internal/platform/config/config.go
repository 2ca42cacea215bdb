package config

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultHomeCountry         = "IN"
	defaultCurrency            = "INR"
	defaultTaxPercent          = "5"
	defaultSnapshotTimeout     = 5 * time.Second
	defaultPaymentProvider     = "stripe"
	defaultOrderTopic          = "order-events"
	defaultRequestsPerMinute   = 120
	defaultSecurityEnvironment = "local"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Pricing    PricingConfig
	Catalog    CatalogConfig
	PSP        PSPConfig
	Events     EventsConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// CheckRevoked rejects tokens whose session was revoked or whose user was disabled.
	CheckRevoked bool
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PricingConfig holds the business configuration consumed by the quote pipeline.
type PricingConfig struct {
	HomeCountry        string
	Currency           string
	DefaultTaxPercent  decimal.Decimal
	CategoryTaxPercent map[string]decimal.Decimal
	DeliveryTiers      []DeliveryTier
}

// DeliveryTier charges Fee when the cart subtotal reaches MinSubtotal.
type DeliveryTier struct {
	MinSubtotal decimal.Decimal
	Fee         decimal.Decimal
}

// CatalogConfig controls catalog snapshot reads and category filters.
type CatalogConfig struct {
	// Categories maps allowed category names to their allowed subcategories.
	Categories      map[string][]string
	SnapshotTimeout time.Duration
}

// PSPConfig collects secrets for payment providers.
type PSPConfig struct {
	Provider     string
	StripeAPIKey string
}

// EventsConfig configures order event publishing.
type EventsConfig struct {
	ProjectID  string
	OrderTopic string
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// SecurityConfig groups deployment environment settings.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}
