package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

func TestGormStoreLinkOrder(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(dbtest.Open(t).DB())
	factory := NewFactory(0, "", nil)

	first := factory.Build(sampleGroup(), uuid.New(), "")
	second := factory.Build(sampleGroup(), uuid.New(), "")
	require.NoError(t, store.Create(ctx, &first))
	require.NoError(t, store.Create(ctx, &second))

	orderID := uuid.New()
	ids := []uuid.UUID{first.ID, second.ID}
	require.NoError(t, store.LinkOrder(ctx, ids, orderID))
	require.NoError(t, store.LinkOrder(ctx, ids, orderID), "linking twice is a no-op")

	found, err := store.FindByIDs(ctx, ids)
	require.NoError(t, err)
	require.Len(t, found, 2)
	for _, inv := range found {
		require.NotNil(t, inv.OrderID)
		assert.Equal(t, orderID, *inv.OrderID)
		assert.Len(t, inv.Items, 1)
	}

	err = store.LinkOrder(ctx, []uuid.UUID{first.ID, uuid.New()}, orderID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(dbtest.Open(t).DB())
	invoice := NewFactory(0, "", nil).Build(sampleGroup(), uuid.New(), "")
	require.NoError(t, store.Create(ctx, &invoice))

	require.NoError(t, store.Delete(ctx, invoice.ID))
	found, err := store.FindByIDs(ctx, []uuid.UUID{invoice.ID})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGormStoreListByVendorPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(dbtest.Open(t).DB())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		invoice := NewFactory(0, "", func() time.Time { return at }).Build(sampleGroup(), uuid.New(), "")
		require.NoError(t, store.Create(ctx, &invoice))
	}
	other := NewFactory(0, "", nil).Build(models.VendorGroup{VendorID: "vendor-2"}, uuid.New(), "")
	require.NoError(t, store.Create(ctx, &other))

	rows, err := store.ListByVendor(ctx, "vendor-1", pagination.Params{Limit: 2})
	require.NoError(t, err)
	page := pagination.Trim(rows, 2, CursorOf)
	require.Len(t, page.Items, 2)
	assert.Equal(t, base.Add(4*time.Hour), page.Items[0].CreatedAt.UTC())
	require.NotEmpty(t, page.NextCursor)

	var seen []models.Invoice
	seen = append(seen, page.Items...)
	for page.NextCursor != "" {
		rows, err = store.ListByVendor(ctx, "vendor-1", pagination.Params{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		page = pagination.Trim(rows, 2, CursorOf)
		seen = append(seen, page.Items...)
	}
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].CreatedAt.After(seen[i].CreatedAt))
	}
}
