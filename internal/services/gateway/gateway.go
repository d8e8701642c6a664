package gateway

import (
	"fmt"

	"tapdeal/internal/config"
	"tapdeal/internal/metrics"
)

// New builds the adapter named by cfg.Provider.
func New(cfg config.GatewayConfig, m metrics.Collector) (Gateway, error) {
	switch cfg.Provider {
	case ProviderRazorpay:
		return NewRazorpayGateway(cfg, m), nil
	case ProviderStripe:
		return NewStripeGateway(cfg, m), nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider %q", cfg.Provider)
	}
}
