package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedProvider is returned when no registered provider matches a payment.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// PaymentContext carries the hints used to pick a provider. Existing payments name their
// provider; new intents are routed by currency.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Manager routes payment calls to the registered PSP adapters.
type Manager struct {
	providers      map[string]Provider
	fallback       string
	currencyRoutes map[string]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider sets the provider used when neither preference nor currency decide.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) { m.fallback = providerKey(provider) }
}

// WithCurrencyRoutes maps ISO currency codes to provider keys.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for currency, provider := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))] = providerKey(provider)
		}
	}
}

// NewManager registers providers by key. Stripe is the default when registered.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:      make(map[string]Provider, len(providers)),
		currencyRoutes: make(map[string]string),
	}
	for name, provider := range providers {
		key := providerKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = provider
	}
	if _, ok := m.providers[ProviderStripe]; ok {
		m.fallback = ProviderStripe
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// CreatePaymentIntent starts a payment on the routed provider.
func (m *Manager) CreatePaymentIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (PaymentDetails, error) {
	return dispatch(m, paymentCtx, func(p Provider) (PaymentDetails, error) {
		return p.CreatePaymentIntent(ctx, req)
	})
}

// LookupPayment reads the current state of a payment.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	return dispatch(m, paymentCtx, func(p Provider) (PaymentDetails, error) {
		return p.LookupPayment(ctx, req)
	})
}

// CancelPayment releases an uncaptured payment.
func (m *Manager) CancelPayment(ctx context.Context, paymentCtx PaymentContext, req CancelRequest) (PaymentDetails, error) {
	return dispatch(m, paymentCtx, func(p Provider) (PaymentDetails, error) {
		return p.CancelPayment(ctx, req)
	})
}

func dispatch(m *Manager, paymentCtx PaymentContext, call func(Provider) (PaymentDetails, error)) (PaymentDetails, error) {
	key, provider, err := m.route(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := call(provider)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// route picks, in order: the preferred provider, the currency route, the default, or the only
// registered provider.
func (m *Manager) route(paymentCtx PaymentContext) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	candidates := []string{
		providerKey(paymentCtx.PreferredProvider),
		m.currencyRoutes[strings.ToUpper(strings.TrimSpace(paymentCtx.Currency))],
		m.fallback,
	}
	for _, key := range candidates {
		if provider, ok := m.providers[key]; ok && key != "" {
			return key, provider, nil
		}
	}
	if len(m.providers) == 1 {
		for key, provider := range m.providers {
			return key, provider, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
