package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reconcile.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// failingStore rejects upserts for one auction number.
type failingStore struct {
	store.Store
	failOn string
}

func (f *failingStore) UpsertListing(ctx context.Context, l *model.Listing) error {
	if l.AuctionNumber == f.failOn {
		return eris.New("disk full")
	}
	return f.Store.UpsertListing(ctx, l)
}

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func listing(num, auctionID string) model.Listing {
	cost := 1234.5
	return model.Listing{
		AuctionNumber: num,
		AuctionID:     auctionID,
		DocketNumber:  "GD-19-" + num,
		SaleType:      model.SaleTypeMortgage,
		Cost:          &cost,
		Address:       []string{num + " MAIN ST PITTSBURGH PA 15213"},
		Checks:        model.Checks{SVS: true, Check3129: true},
	}
}

func TestReconcile_UpsertsAndSetsCurrentAuction(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 2)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, []model.Listing{listing("1", ""), listing("2", "072020"), listing("3", "072020")})
	require.NoError(t, err)
	assert.Equal(t, "072020", res.AuctionID)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Listings, 3)

	id, err := r.CurrentAuctionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "072020", id)

	got, err := st.GetListing(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "GD-19-2", got.DocketNumber)
}

func TestReconcile_Idempotent(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 4)
	ctx := context.Background()
	batch := []model.Listing{listing("1", "072020"), listing("2", "072020")}

	_, err := r.Reconcile(ctx, batch)
	require.NoError(t, err)
	first, err := st.ListListings(ctx, store.ListingFilter{AuctionID: "072020"})
	require.NoError(t, err)

	_, err = r.Reconcile(ctx, batch)
	require.NoError(t, err)
	second, err := st.ListListings(ctx, store.ListingFilter{AuctionID: "072020"})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	byNum := map[string]model.Listing{}
	for _, l := range first {
		byNum[l.AuctionNumber] = l
	}
	for _, l := range second {
		prev := byNum[l.AuctionNumber]
		assert.Equal(t, prev.CreatedAt, l.CreatedAt)
		prev.UpdatedAt, l.UpdatedAt = time.Time{}, time.Time{}
		assert.Equal(t, prev, l)
	}
}

func TestReconcile_KeepsEnrichment(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 1)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, []model.Listing{listing("1", "072020")})
	require.NoError(t, err)

	enriched, err := st.GetListing(ctx, "1")
	require.NoError(t, err)
	est := 120000.0
	judgment := 5000.0
	enriched.ZillowData = &model.ZillowData{ZillowID: "z1", ZillowEstimate: &est}
	enriched.Coords = &model.Coords{Latitude: 40.44, Longitude: -79.99}
	enriched.Judgment = &judgment
	enriched.FirmName = "KML Law Group"
	enriched.Enrichment.Mark(model.SourceValuation, model.StatusValid, time.Now())
	require.NoError(t, st.UpsertListing(ctx, enriched))

	updated := listing("1", "072020")
	updated.SaleStatus = "POSTPONED"
	_, err = r.Reconcile(ctx, []model.Listing{updated})
	require.NoError(t, err)

	got, err := st.GetListing(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "POSTPONED", got.SaleStatus)
	assert.InDelta(t, est, got.Estimate(), 0.001)
	require.NotNil(t, got.Coords)
	assert.InDelta(t, -79.99, got.Coords.Longitude, 0.0001)
	assert.Equal(t, "KML Law Group", got.FirmName)
	assert.Equal(t, model.StatusValid, got.Enrichment.Valuation.Status)
}

func TestReconcile_PerListingFailureSkipped(t *testing.T) {
	st := newTestStore(t)
	r := New(&failingStore{Store: st, failOn: "2"}, 2)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, []model.Listing{listing("1", "082020"), listing("2", "082020")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "1", res.Listings[0].AuctionNumber)

	_, err = st.GetListing(ctx, "2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcile_AllFailStillReturnsID(t *testing.T) {
	st := newTestStore(t)
	r := New(&failingStore{Store: st, failOn: "1"}, 1)

	res, err := r.Reconcile(context.Background(), []model.Listing{listing("1", "092020")})
	require.NoError(t, err)
	assert.Equal(t, "092020", res.AuctionID)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Listings)
	assert.Empty(t, res.Listings)
}

func TestReconcile_CurrentAuctionOnlyWrittenOnChange(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 1)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, []model.Listing{listing("1", "072020")})
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, []model.Listing{listing("2", "082020")})
	require.NoError(t, err)

	id, err := r.CurrentAuctionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "082020", id)
}

func TestResolveGlobalPostponementDate_Mode(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 1)
	ctx := context.Background()

	dates := []*time.Time{ts("2020-08-03"), ts("2020-09-08"), ts("2020-08-03"), ts("2020-10-05"), ts("2020-08-03")}
	batch := make([]model.Listing, 0, len(dates))
	for i, d := range dates {
		l := listing(string(rune('a'+i)), "072020")
		l.IsPP = true
		l.PPDate = d
		batch = append(batch, l)
	}
	notPP := listing("z", "072020")
	notPP.PPDate = ts("2021-01-01")
	batch = append(batch, notPP)

	_, err := r.Reconcile(ctx, batch)
	require.NoError(t, err)

	got := r.ResolveGlobalPostponementDate(ctx, "072020")
	assert.True(t, got.Equal(*ts("2020-08-03")), "got %s", got)

	stored, err := st.GetConfig(ctx, model.ConfigGlobalPPDate)
	require.NoError(t, err)
	assert.Equal(t, "2020-08-03T00:00:00Z", stored)
}

func TestResolveGlobalPostponementDate_EmptyReturnsNow(t *testing.T) {
	st := newTestStore(t)
	r := New(st, 1)
	fixed := time.Date(2020, 7, 6, 12, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })

	got := r.ResolveGlobalPostponementDate(context.Background(), "072020")
	assert.Equal(t, fixed, got)
}

func TestResolveGlobalPostponementDate_MissingConfigReturnsNow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.DB().ExecContext(ctx, `DELETE FROM auction_config`)
	require.NoError(t, err)

	r := New(st, 1)
	fixed := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	r.SetClock(func() time.Time { return fixed })

	l := listing("1", "072020")
	l.IsPP = true
	l.PPDate = ts("2020-08-03")
	require.NoError(t, st.UpsertListing(ctx, &l))

	assert.Equal(t, fixed, r.ResolveGlobalPostponementDate(ctx, "072020"))
}

func TestMode(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
		ok     bool
	}{
		{"majority", []string{"A", "B", "A", "C", "A"}, "A", true},
		{"tie first seen wins", []string{"B", "A", "A", "B"}, "B", true},
		{"single", []string{"X"}, "X", true},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Mode(tt.values)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBatchAuctionID(t *testing.T) {
	assert.Equal(t, "", BatchAuctionID(nil))
	assert.Equal(t, "072020", BatchAuctionID([]model.Listing{{}, {AuctionID: "072020"}, {AuctionID: "082020"}}))
}
