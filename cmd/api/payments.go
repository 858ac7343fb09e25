package main

import (
	"context"
	"strings"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/square"
	"github.com/angelmondragon/bazaar-backend/pkg/stripe"
)

// newPaymentVerifier registers remote verifiers for the providers that have
// credentials. Other online methods are checked for artifact presence.
func newPaymentVerifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*payments.Registry, error) {
	registry := payments.NewRegistry(logg)
	if !cfg.Checkout.RemoteVerification() {
		logg.Warn(ctx, "remote payment verification disabled, checking artifact presence only")
		return registry, nil
	}

	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, err
		}
		registry.Register(enums.PaymentMethodStripe, payments.NewStripeVerifier(client))
	}

	if strings.TrimSpace(cfg.Square.AccessToken) != "" {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		registry.Register(enums.PaymentMethodSquare, payments.NewSquareVerifier(client))
	}
	return registry, nil
}
