package model

import "time"

// EnrichmentStatus is the retry-gating state of one upstream source for a listing.
type EnrichmentStatus string

const (
	StatusNotAttempted EnrichmentStatus = "not_attempted"
	StatusStale        EnrichmentStatus = "stale"
	StatusValid        EnrichmentStatus = "valid"
	StatusFailed       EnrichmentStatus = "failed"
)

// Source names an enrichment feed.
type Source string

const (
	SourceValuation Source = "valuation"
	SourceJudgment  Source = "judgment"
	SourceLawFirm   Source = "law_firm"
	SourceGeocode   Source = "geocode"
)

// SourceState records the last outcome of one enrichment source.
type SourceState struct {
	Status    EnrichmentStatus `json:"status,omitempty"`
	CheckedAt *time.Time       `json:"checkedAt,omitempty"`
}

// EnrichmentState tracks every source independently of the data it produced.
type EnrichmentState struct {
	Valuation SourceState `json:"valuation"`
	Judgment  SourceState `json:"judgment"`
	LawFirm   SourceState `json:"lawFirm"`
	Geocode   SourceState `json:"geocode"`
}

// Get returns the state for src.
func (e *EnrichmentState) Get(src Source) SourceState {
	switch src {
	case SourceValuation:
		return e.Valuation
	case SourceJudgment:
		return e.Judgment
	case SourceLawFirm:
		return e.LawFirm
	case SourceGeocode:
		return e.Geocode
	}
	return SourceState{}
}

// Mark stamps the outcome of an attempt against src.
func (e *EnrichmentState) Mark(src Source, status EnrichmentStatus, at time.Time) {
	st := SourceState{Status: status, CheckedAt: &at}
	switch src {
	case SourceValuation:
		e.Valuation = st
	case SourceJudgment:
		e.Judgment = st
	case SourceLawFirm:
		e.LawFirm = st
	case SourceGeocode:
		e.Geocode = st
	}
}

// Effective resolves the stored state against now: an outcome recorded on an
// earlier calendar day is reported as stale, nothing recorded is not attempted.
func (s SourceState) Effective(now time.Time) EnrichmentStatus {
	if s.CheckedAt == nil || s.Status == "" || s.Status == StatusNotAttempted {
		return StatusNotAttempted
	}
	if !SameDay(*s.CheckedAt, now) {
		return StatusStale
	}
	return s.Status
}

// SameDay reports whether a and b fall on the same calendar day in now's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
