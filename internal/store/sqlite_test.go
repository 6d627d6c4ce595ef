package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheriff-sales/internal/config"
	"github.com/sells-group/sheriff-sales/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleListing(num, auctionID, docket string) *model.Listing {
	est := 90000.0
	return &model.Listing{
		AuctionNumber: num,
		AuctionID:     auctionID,
		DocketNumber:  docket,
		SaleType:      model.SaleTypeMortgage,
		Address:       []string{"1 OAK AVE PITTSBURGH PA 15201"},
		Checks:        model.Checks{SVS: true},
		ZillowData:    &model.ZillowData{ZillowEstimate: &est},
	}
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	l := sampleListing("A-1", "072020", "GD-19-000001")
	require.NoError(t, st.UpsertListing(ctx, l))
	assert.False(t, l.CreatedAt.IsZero())

	got, err := st.GetListing(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "GD-19-000001", got.DocketNumber)
	assert.Equal(t, model.Checks{SVS: true}, got.Checks)
	assert.InDelta(t, 90000.0, got.Estimate(), 0.001)
	assert.Equal(t, []string{"1 OAK AVE PITTSBURGH PA 15201"}, got.Address)
}

func TestSQLite_UpsertPreservesCreatedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := sampleListing("A-1", "072020", "GD-19-000001")
	require.NoError(t, st.UpsertListing(ctx, first))
	got, err := st.GetListing(ctx, "A-1")
	require.NoError(t, err)
	created := got.CreatedAt

	time.Sleep(5 * time.Millisecond)

	// A fresh normalization carries no CreatedAt; the stored one wins.
	second := sampleListing("A-1", "072020", "GD-19-000001")
	second.SaleStatus = "STAYED"
	require.NoError(t, st.UpsertListing(ctx, second))
	assert.True(t, created.Equal(second.CreatedAt))

	got, err = st.GetListing(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, "STAYED", got.SaleStatus)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, got.UpdatedAt.After(created))
}

func TestSQLite_GetListing_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetListing(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListListings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertListing(ctx, sampleListing("A-1", "072020", "GD-1")))
	require.NoError(t, st.UpsertListing(ctx, sampleListing("A-2", "072020", "GD-2")))
	pp := sampleListing("A-3", "072020", "GD-3")
	pp.IsPP = true
	require.NoError(t, st.UpsertListing(ctx, pp))
	require.NoError(t, st.UpsertListing(ctx, sampleListing("B-1", "082020", "GD-4")))

	all, err := st.ListListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	july, err := st.ListListings(ctx, ListingFilter{AuctionID: "072020"})
	require.NoError(t, err)
	assert.Len(t, july, 3)

	byDocket, err := st.ListListings(ctx, ListingFilter{DocketNumbers: []string{"GD-2", "GD-4"}})
	require.NoError(t, err)
	require.Len(t, byDocket, 2)

	ppOnly, err := st.ListListings(ctx, ListingFilter{AuctionID: "072020", PPOnly: true})
	require.NoError(t, err)
	require.Len(t, ppOnly, 1)
	assert.Equal(t, "A-3", ppOnly[0].AuctionNumber)
}

func TestSQLite_DeleteListing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertListing(ctx, sampleListing("A-1", "072020", "GD-1")))
	require.NoError(t, st.DeleteListing(ctx, "A-1"))
	assert.ErrorIs(t, st.DeleteListing(ctx, "A-1"), ErrNotFound)
}

func TestSQLite_Config(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Migrate seeds the known keys empty.
	v, err := st.GetConfig(ctx, model.ConfigGlobalPPDate)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, st.SetConfig(ctx, model.ConfigCurrentAuctionID, "072020"))
	require.NoError(t, st.SetConfig(ctx, model.ConfigCurrentAuctionID, "082020"))
	v, err = st.GetConfig(ctx, model.ConfigCurrentAuctionID)
	require.NoError(t, err)
	assert.Equal(t, "082020", v)

	_, err = st.GetConfig(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetConfig(ctx, model.ConfigCurrentAuctionID, "072020"))
	require.NoError(t, st.Migrate(ctx))

	v, err := st.GetConfig(ctx, model.ConfigCurrentAuctionID)
	require.NoError(t, err)
	assert.Equal(t, "072020", v)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mongo"`)
}
