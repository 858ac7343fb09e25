// Package stripe reads payment intents so checkout can confirm a buyer paid.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var ErrAPIKeyRequired = errors.New("stripe api key is required")

type Client struct {
	api  *stripe.Client
	mode string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not one of test, live", mode)
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrAPIKeyRequired
	}
	if !hasAnyPrefix(key, prefixes) {
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"stripe_mode": mode, "stripe_key": maskKey(key)})
		logg.Info(ctx, "stripe client ready")
	}
	return &Client{api: stripe.NewClient(key), mode: mode}, nil
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	return c.mode
}

func (c *Client) PaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	intent, err := c.api.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, classify(err, "retrieve payment intent "+id)
	}
	return intent, nil
}

// classify turns Stripe API failures into domain errors; transport failures
// become dependency errors.
func classify(err error, op string) error {
	var apiErr *stripe.Error
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe "+op+" failed")
	}
	code := pkgerrors.FromHTTPStatus(apiErr.HTTPStatusCode)
	if apiErr.Code == stripe.ErrorCodeResourceMissing {
		code = pkgerrors.CodeNotFound
	}
	return pkgerrors.Wrap(code, err, "stripe "+op+" failed")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func maskKey(key string) string {
	if len(key) <= 12 {
		return "****"
	}
	return key[:8] + "****" + key[len(key)-4:]
}
