package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksSummary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Y Y X", Checks{SVS: true, Check3129: true}.Summary())
	assert.Equal(t, "X X X", Checks{}.Summary())
	assert.Equal(t, "X Y Y", Checks{Check3129: true, OK: true}.Summary())
}

func TestChecksJSONKey(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Checks{Check3129: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"svs":false,"3129":true,"ok":false}`, string(data))
}

func TestListingAccessors(t *testing.T) {
	t.Parallel()

	var nilListing *Listing
	assert.Equal(t, 0.0, nilListing.Estimate())
	assert.Equal(t, "", nilListing.PrimaryAddress())
	assert.False(t, nilListing.HasCoords())

	est := 91000.0
	l := &Listing{
		Address:    []string{"1 MAIN ST", "2 MAIN ST"},
		Coords:     &Coords{Latitude: 40.4, Longitude: -79.9},
		ZillowData: &ZillowData{ZillowEstimate: &est},
	}
	assert.Equal(t, 91000.0, l.Estimate())
	assert.Equal(t, "1 MAIN ST", l.PrimaryAddress())
	assert.True(t, l.HasCoords())
}

func TestListingClone(t *testing.T) {
	t.Parallel()

	orig := Listing{
		AuctionNumber: "1",
		Address:       []string{"1 MAIN ST"},
		Coords:        &Coords{Latitude: 1, Longitude: 2},
		ZillowData:    &ZillowData{ZillowID: "z"},
	}
	c := orig.Clone()
	c.Address[0] = "changed"
	c.Coords.Latitude = 9
	c.ZillowData.ZillowID = "other"

	assert.Equal(t, "1 MAIN ST", orig.Address[0])
	assert.Equal(t, 1.0, orig.Coords.Latitude)
	assert.Equal(t, "z", orig.ZillowData.ZillowID)
}

func TestSourceStateEffective(t *testing.T) {
	t.Parallel()

	now := time.Date(2020, 7, 6, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2020, 7, 6, 1, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name  string
		state SourceState
		want  EnrichmentStatus
	}{
		{"empty", SourceState{}, StatusNotAttempted},
		{"status without time", SourceState{Status: StatusValid}, StatusNotAttempted},
		{"valid today", SourceState{Status: StatusValid, CheckedAt: &morning}, StatusValid},
		{"failed today", SourceState{Status: StatusFailed, CheckedAt: &morning}, StatusFailed},
		{"valid yesterday", SourceState{Status: StatusValid, CheckedAt: &yesterday}, StatusStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.Effective(now))
		})
	}
}

func TestEnrichmentStateMark(t *testing.T) {
	t.Parallel()

	at := time.Date(2020, 7, 6, 12, 0, 0, 0, time.UTC)
	var e EnrichmentState
	for _, src := range []Source{SourceValuation, SourceJudgment, SourceLawFirm, SourceGeocode} {
		e.Mark(src, StatusValid, at)
		got := e.Get(src)
		assert.Equal(t, StatusValid, got.Status, src)
		require.NotNil(t, got.CheckedAt)
		assert.True(t, got.CheckedAt.Equal(at))
	}
	assert.Equal(t, SourceState{}, e.Get(Source("unknown")))
}

func TestSameDay(t *testing.T) {
	t.Parallel()

	est := time.FixedZone("EST", -5*3600)
	b := time.Date(2020, 7, 6, 1, 0, 0, 0, est)
	assert.True(t, SameDay(time.Date(2020, 7, 6, 5, 59, 0, 0, time.UTC), b))
	assert.False(t, SameDay(time.Date(2020, 7, 6, 4, 59, 0, 0, time.UTC), b))
}

func TestRunPhase(t *testing.T) {
	t.Parallel()

	r := &Run{Phases: []PhaseResult{{Name: "parse", Status: PhaseStatusComplete}}}
	p, ok := r.Phase("parse")
	assert.True(t, ok)
	assert.Equal(t, PhaseStatusComplete, p.Status)
	_, ok = r.Phase("render")
	assert.False(t, ok)
}
