package config

import (
	"context"
	"errors"
	"strings"
)

const defaultEnvFile = ".env"

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the dotenv path. An empty path disables dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret fields, by config field name such as "PSP.StripeAPIKey",
// that must resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns the merged environment Load would see (dotenv, then the process
// environment, then WithEnvMap). main uses it to configure the secret fetcher before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	src, err := newEnvSource(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return src.snapshot(), nil
}

// Load builds the configuration from defaults, dotenv, the environment and secret references,
// then validates it.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := newEnvSource(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         src.str("QUOTE_SERVER_PORT", defaultPort),
			ReadTimeout:  src.duration("Server.ReadTimeout", "QUOTE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: src.duration("Server.WriteTimeout", "QUOTE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  src.duration("Server.IdleTimeout", "QUOTE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.raw("QUOTE_FIREBASE_PROJECT_ID"),
			CredentialsFile: src.raw("QUOTE_FIREBASE_CREDENTIALS_FILE"),
			CheckRevoked:    src.flag("Firebase.CheckRevoked", "QUOTE_FIREBASE_CHECK_REVOKED", false),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.raw("QUOTE_FIRESTORE_PROJECT_ID"),
			EmulatorHost: src.raw("QUOTE_FIRESTORE_EMULATOR_HOST"),
		},
		Pricing: PricingConfig{
			HomeCountry:        strings.ToUpper(src.str("QUOTE_PRICING_HOME_COUNTRY", defaultHomeCountry)),
			Currency:           strings.ToUpper(src.str("QUOTE_PRICING_CURRENCY", defaultCurrency)),
			DefaultTaxPercent:  src.percent("Pricing.DefaultTaxPercent", "QUOTE_PRICING_DEFAULT_TAX_PERCENT", defaultTaxPercent),
			CategoryTaxPercent: src.percentByName("Pricing.CategoryTaxPercent", "QUOTE_PRICING_CATEGORY_TAX_PERCENT"),
			DeliveryTiers:      src.deliveryTiers("Pricing.DeliveryTiers", "QUOTE_PRICING_DELIVERY_TIERS"),
		},
		Catalog: CatalogConfig{
			Categories:      src.categories("QUOTE_CATALOG_CATEGORIES"),
			SnapshotTimeout: src.duration("Catalog.SnapshotTimeout", "QUOTE_CATALOG_SNAPSHOT_TIMEOUT", defaultSnapshotTimeout),
		},
		PSP: PSPConfig{
			Provider:     strings.ToLower(src.str("QUOTE_PSP_PROVIDER", defaultPaymentProvider)),
			StripeAPIKey: src.raw("QUOTE_PSP_STRIPE_API_KEY"),
		},
		Events: EventsConfig{
			ProjectID:  src.raw("QUOTE_EVENTS_PROJECT_ID"),
			OrderTopic: src.str("QUOTE_EVENTS_ORDER_TOPIC", defaultOrderTopic),
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: src.integer("RateLimits.RequestsPerMinute", "QUOTE_RATELIMIT_REQUESTS_PER_MIN", defaultRequestsPerMinute),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(src.str("QUOTE_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Firestore and Pub/Sub live in the Firebase project unless told otherwise.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firebase.ProjectID
	}

	resolved, err := resolveSecretFields(ctx, options.secret, map[string]*string{
		"PSP.StripeAPIKey": &cfg.PSP.StripeAPIKey,
	})
	if err != nil {
		return Config{}, err
	}
	if invalid := validate(cfg, src.invalid); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	if missing := missingSecrets(options.requiredSecrets, resolved); len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}
	return cfg, nil
}

// resolveSecretFields replaces secret references in place and returns the resolved values by
// field name. Plain values pass through unchanged.
func resolveSecretFields(ctx context.Context, resolver SecretResolver, fields map[string]*string) (map[string]string, error) {
	resolved := make(map[string]string, len(fields))
	for name, field := range fields {
		value := strings.TrimSpace(*field)
		if ref, ok := secretReference(value); ok {
			if resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
			}
			secret, err := resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			value = secret
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
	}
	return resolved, nil
}

// secretReference normalises sm:// to secret:// and reports whether value is a reference.
func secretReference(value string) (string, bool) {
	switch {
	case strings.HasPrefix(value, "secret://"):
		return value, true
	case strings.HasPrefix(value, "sm://"):
		return "secret://" + strings.TrimPrefix(value, "sm://"), true
	default:
		return "", false
	}
}

func validate(cfg Config, invalid []string) []string {
	problems := append([]string(nil), invalid...)
	check := func(ok bool, field string) {
		if !ok {
			problems = append(problems, field)
		}
	}
	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(len(cfg.Pricing.HomeCountry) == 2, "Pricing.HomeCountry")
	check(len(cfg.Pricing.Currency) == 3, "Pricing.Currency")
	check(cfg.Catalog.SnapshotTimeout > 0, "Catalog.SnapshotTimeout")
	check(cfg.Events.OrderTopic != "", "Events.OrderTopic")
	return problems
}

func missingSecrets(required []string, resolved map[string]string) []string {
	var missing []string
	seen := make(map[string]bool, len(required))
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
