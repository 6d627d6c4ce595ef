package enrich

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/store"
	"github.com/sells-group/sheriff-sales/pkg/geocode"
	"github.com/sells-group/sheriff-sales/pkg/valuation"
)

var testNow = time.Date(2020, 7, 6, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "enrich.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st store.Store, listings ...model.Listing) {
	t.Helper()
	for i := range listings {
		require.NoError(t, st.UpsertListing(context.Background(), &listings[i]))
	}
}

func get(t *testing.T, st store.Store, num string) *model.Listing {
	t.Helper()
	l, err := st.GetListing(context.Background(), num)
	require.NoError(t, err)
	return l
}

func testListing(num, address string) model.Listing {
	return model.Listing{
		AuctionNumber: num,
		AuctionID:     "072020",
		DocketNumber:  "GD-19-" + num,
		AttorneyName:  "KML LAW GROUP PC",
		Address:       []string{address},
	}
}

func f64(v float64) *float64 { return &v }

// fakeValuation accepts only the tokens in good, counts calls per token and
// records every query. Addresses in fail return that error for any token.
type fakeValuation struct {
	mu      sync.Mutex
	calls   map[string]int
	good    map[string]bool
	fail    map[string]error
	queries []valuation.Query
	bundle  *valuation.Bundle
}

func newFakeValuation(bundle *valuation.Bundle, good ...string) *fakeValuation {
	f := &fakeValuation{calls: map[string]int{}, good: map[string]bool{}, fail: map[string]error{}, bundle: bundle}
	for _, g := range good {
		f.good[g] = true
	}
	return f
}

func (f *fakeValuation) Lookup(_ context.Context, token string, q valuation.Query) (*valuation.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[token]++
	f.queries = append(f.queries, q)
	if err := f.fail[q.Address]; err != nil {
		return nil, err
	}
	if !f.good[token] {
		return nil, &valuation.StatusError{Path: "/zestimates_v2/zestimates", StatusCode: 401, Body: "unauthorized"}
	}
	return f.bundle, nil
}

func (f *fakeValuation) count(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[token]
}

func (f *fakeValuation) setGood(token string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.good[token] = ok
}

func (f *fakeValuation) setFail(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[address] = err
}

func (f *fakeValuation) recorded() []valuation.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]valuation.Query(nil), f.queries...)
}

type fakeGeocoder struct {
	byAddress map[string][]geocode.Candidate
	err       error
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) ([]geocode.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byAddress[address], nil
}

type fakeJudgments struct {
	amounts map[string]float64
	err     error
}

func (f *fakeJudgments) Judgments(context.Context) (map[string]float64, error) {
	return f.amounts, f.err
}

func fullBundle() *valuation.Bundle {
	beds, year := 3, 1925
	return &valuation.Bundle{
		Zestimate: &valuation.Zestimate{
			Zpid:      "11468925",
			Zestimate: f64(92000),
			Rental:    []valuation.Rental{{Zestimate: f64(1100)}},
			ZillowURL: "https://www.zillow.com/homedetails/11468925_zpid/",
		},
		Parcel: &valuation.Parcel{
			APN:               "0084-K-00123",
			LotSizeSquareFeet: f64(2400),
			Building:          []valuation.Building{{Bedrooms: &beds, FullBaths: f64(1.5), YearBuilt: &year}},
			Coordinates:       []float64{-79.9959, 40.4406},
		},
		Transaction: &valuation.Transaction{
			SalesPrice:    f64(45000),
			UnpaidBalance: f64(38000),
			RecordingDate: "2015-03-02T00:00:00Z",
			LenderName:    []string{"WELLS FARGO BANK"},
		},
	}
}
