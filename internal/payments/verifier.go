package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Verifier decides whether a payment artifact authorises the checkout.
type Verifier interface {
	Verify(ctx context.Context, method enums.PaymentMethod, artifact Artifact) (bool, error)
}

// MethodVerifier verifies artifacts for a single payment method.
type MethodVerifier interface {
	Verify(ctx context.Context, artifact Artifact) (bool, error)
}

// MethodVerifierFunc adapts a function to MethodVerifier.
type MethodVerifierFunc func(ctx context.Context, artifact Artifact) (bool, error)

func (f MethodVerifierFunc) Verify(ctx context.Context, artifact Artifact) (bool, error) {
	return f(ctx, artifact)
}

// Registry dispatches to per-method verifiers. Offline methods always pass;
// methods without a registered verifier fall back to artifact presence.
type Registry struct {
	verifiers map[enums.PaymentMethod]MethodVerifier
	logg      *logger.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logg *logger.Logger) *Registry {
	return &Registry{verifiers: map[enums.PaymentMethod]MethodVerifier{}, logg: logg}
}

// Register installs a verifier for method, replacing any previous one.
func (r *Registry) Register(method enums.PaymentMethod, verifier MethodVerifier) {
	r.verifiers[method] = verifier
}

func (r *Registry) Verify(ctx context.Context, method enums.PaymentMethod, artifact Artifact) (bool, error) {
	if !method.IsValid() {
		return false, nil
	}
	if method.IsOffline() {
		return true, nil
	}
	verifier, ok := r.verifiers[method]
	if !ok {
		return artifact.MissingField(method) == "", nil
	}
	verified, err := verifier.Verify(ctx, artifact)
	if err != nil {
		return false, fmt.Errorf("verify %s payment: %w", method, err)
	}
	if !verified && r.logg != nil {
		r.logg.Warn(r.logg.WithField(ctx, "payment_method", method.String()), "payment artifact rejected")
	}
	return verified, nil
}

// StripeIntents is the slice of the Stripe client used for verification.
type StripeIntents interface {
	PaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeVerifier accepts a payment intent that has succeeded or is
// authorised for capture. Client-side tokens are accepted on presence.
type StripeVerifier struct {
	intents StripeIntents
}

func NewStripeVerifier(intents StripeIntents) *StripeVerifier {
	return &StripeVerifier{intents: intents}
}

func (v *StripeVerifier) Verify(ctx context.Context, artifact Artifact) (bool, error) {
	id := strings.TrimSpace(artifact.PaymentIntentID)
	if id == "" {
		return artifact.MissingField(enums.PaymentMethodStripe) == "", nil
	}
	intent, err := v.intents.PaymentIntent(ctx, id)
	if err != nil {
		return false, err
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusProcessing:
		return true, nil
	default:
		return false, nil
	}
}

// SquarePayments is the slice of the Square client used for verification.
type SquarePayments interface {
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareVerifier accepts payments in APPROVED or COMPLETED state.
type SquareVerifier struct {
	payments SquarePayments
}

func NewSquareVerifier(payments SquarePayments) *SquareVerifier {
	return &SquareVerifier{payments: payments}
}

func (v *SquareVerifier) Verify(ctx context.Context, artifact Artifact) (bool, error) {
	id := strings.TrimSpace(artifact.PaymentID)
	if id == "" {
		return artifact.MissingField(enums.PaymentMethodSquare) == "", nil
	}
	payment, err := v.payments.GetPayment(ctx, id)
	if err != nil {
		return false, err
	}
	if payment == nil || payment.GetStatus() == nil {
		return false, nil
	}
	switch strings.ToUpper(*payment.GetStatus()) {
	case "APPROVED", "COMPLETED":
		return true, nil
	default:
		return false, nil
	}
}
