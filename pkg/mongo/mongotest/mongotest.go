// Package mongotest boots throwaway MongoDB containers for repository tests.
package mongotest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/mongo"
)

const image = "mongo:7"

// Start runs a MongoDB container and returns a connected client on a fresh
// database. The test is skipped in -short mode or when Docker is unavailable.
// replicaSet starts a single node replica set so transactions are available.
func Start(t *testing.T, replicaSet bool) *mongo.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongodb container test in short mode")
	}

	ctx := context.Background()
	opts := []testcontainers.ContainerCustomizer{}
	if replicaSet {
		opts = append(opts, mongodb.WithReplicaSet("rs0"))
	}

	container, err := mongodb.Run(ctx, image, opts...)
	if err != nil {
		if container != nil {
			_ = container.Terminate(ctx)
		}
		t.Skipf("mongodb container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("mongodb connection string: %v", err)
	}
	if replicaSet && !strings.Contains(uri, "directConnection") {
		uri = appendParam(uri, "directConnection=true")
	}

	client, err := mongo.Connect(ctx, config.MongoConfig{
		URI:                    uri,
		Database:               "bazaar_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		MaxPoolSize:            20,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 10 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("connect mongodb: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func appendParam(uri, param string) string {
	if strings.Contains(uri, "?") {
		return uri + "&" + param
	}
	return uri + "/?" + param
}
