package unitofwork

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/mongo/mongotest"
)

func TestMongoNativeAbortDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	client := mongotest.Start(t, true)
	require.NoError(t, catalog.NewMongoStore(client.Database()).CreateIndexes(ctx))
	uow := NewMongo(client, true, logger.Nop())

	product := models.Product{ID: uuid.New(), VendorID: "vendor-1", Name: "Rug", PriceCents: 9000, Stock: 4}
	require.NoError(t, uow.Repositories().Products.Create(ctx, &product))

	work, err := uow.Begin(ctx)
	require.NoError(t, err)
	ok, err := work.Repositories().Products.DecrementStock(work.Context(), product.ID, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, work.Abort())

	stock, err := uow.Repositories().Products.Stock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stock)

	work, err = uow.Begin(ctx)
	require.NoError(t, err)
	_, err = work.Repositories().Products.DecrementStock(work.Context(), product.ID, 3)
	require.NoError(t, err)
	require.NoError(t, work.Commit())

	stock, err = uow.Repositories().Products.Stock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}
