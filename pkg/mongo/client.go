package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Client wraps the shared MongoDB connection and the service database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a pooled MongoDB client and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "mongodb connection established")
	}

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the service database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Raw exposes the driver client for session management.
func (c *Client) Raw() *mongo.Client {
	return c.client
}

// Ping verifies the deployment is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

// Close disconnects the pooled client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// SupportsTransactions reports whether the deployment is a replica set or a
// sharded cluster. Standalone servers reject multi-document transactions.
func (c *Client) SupportsTransactions(ctx context.Context) (bool, error) {
	var reply helloReply
	if err := c.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return false, fmt.Errorf("running hello: %w", err)
	}
	return reply.SetName != "" || reply.Msg == "isdbgrid", nil
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return err != nil && mongo.IsDuplicateKeyError(err)
}

// IsTransientTransaction reports whether a transaction can be retried as a whole.
func IsTransientTransaction(err error) bool {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError")
	}
	return false
}
