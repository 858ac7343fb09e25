// Package square reads Square payments for checkout verification.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

var ErrAccessTokenRequired = errors.New("square access token is required")

type Client struct {
	sdk  *sqclient.Client
	env  string
	logg *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q is not one of sandbox, production", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, ErrAccessTokenRequired
	}
	c := newClient(baseURL, token, env, logg)
	if logg != nil {
		logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	}
	return c, nil
}

func newClient(baseURL, token, env string, logg *logger.Logger) *Client {
	return &Client{
		sdk: sqclient.NewClient(
			sqoption.WithBaseURL(baseURL),
			sqoption.WithToken(token),
		),
		env:  env,
		logg: logg,
	}
}

func (c *Client) Environment() string {
	return c.env
}

// GetPayment loads a payment by id. Card details are never logged.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	start := time.Now()
	resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	fields := map[string]any{
		"square_op":   "payments.get",
		"payment_id":  paymentID,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		mapped := classify(err, "get payment")
		c.debug(ctx, fields, "square call failed", mapped)
		return nil, mapped
	}
	payment := resp.GetPayment()
	if status := payment.GetStatus(); status != nil {
		fields["payment_status"] = *status
	}
	c.debug(ctx, fields, "square call completed", nil)
	return payment, nil
}

func (c *Client) debug(ctx context.Context, fields map[string]any, msg string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, fields)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), msg)
		return
	}
	c.logg.Debug(ctx, msg)
}

// classify maps an SDK failure onto a domain code. Square's error list
// refines the status code for reused idempotency keys and bad credentials.
func classify(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}
	code := pkgerrors.FromHTTPStatus(apiErr.StatusCode)
	for _, detail := range errorDetails(apiErr) {
		switch {
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeUnauthorized
		default:
			continue
		}
		break
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

// errorDetails decodes the {"errors":[...]} body the SDK keeps as the
// wrapped error text.
func errorDetails(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
