// Package provider selects the configured payment.Processor.
package provider

import (
	"fmt"
	"strings"

	"github.com/iliyamo/festival-registration/internal/config"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/payment/stripe"
)

// New returns the processor named by cfg.Provider.
func New(cfg config.PaymentConfig) (payment.Processor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "stripe", "":
		return stripe.New(cfg.SecretKey, cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.Provider)
	}
}
