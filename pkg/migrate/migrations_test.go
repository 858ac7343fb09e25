package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Migrations()))
}

func TestEmbeddedMigrationsMatchSourceTree(t *testing.T) {
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))
}

func TestMigrationsContainCheckoutSchema(t *testing.T) {
	files, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var all strings.Builder
	for _, name := range files {
		data, err := fs.ReadFile(migrate.Migrations(), name)
		require.NoError(t, err)
		all.Write(data)
	}
	content := all.String()

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS promo_codes",
		"CREATE TABLE IF NOT EXISTS buyers",
		"CREATE TABLE IF NOT EXISTS invoices",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_vendors",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"CREATE TABLE IF NOT EXISTS reconciliation_tasks",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_buyer_idempotency",
		"CHECK (stock >= 0)",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	good := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{
			name:  "bad name",
			files: fstest.MapFS{"create_orders.sql": {Data: []byte(good)}},
			want:  "want <YYYYMMDDHHMMSS>",
		},
		{
			name: "duplicate version",
			files: fstest.MapFS{
				"20260101000000_a.sql": {Data: []byte(good)},
				"20260101000000_b.sql": {Data: []byte(good)},
			},
			want: "share version",
		},
		{
			name:  "missing down",
			files: fstest.MapFS{"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
			want:  "-- +goose Down",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := migrate.Validate(tc.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	assert.NoError(t, migrate.Validate(fstest.MapFS{"README.md": {Data: []byte("notes")}}))
}

func TestCreateWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Vendor Payout Index!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20261016093000_add_vendor_payout_index.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "-- +goose Down")
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add vendor payout index", now)
	assert.Error(t, err, "same version and slug must not overwrite")

	_, err = migrate.Create(dir, "!!!", now)
	assert.Error(t, err)
}
