// Package parser reconstructs auction records from positional text tokens.
package parser

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fragment is one provisional record: the ordered field slots collected
// between a docket anchor and an address anchor, plus the address span.
type Fragment struct {
	Slots        []string
	Addresses    []string
	FreeAndClear bool
	PP           bool
	Page         int
	Index        int
}

// Len is the slot count including the trailing address slot.
func (f Fragment) Len() int { return len(f.Slots) + 1 }

// Anomaly describes a token the parser could not place.
type Anomaly struct {
	Page    int
	Index   int
	Partial []string
	Reason  string
}

// Result is the outcome of parsing one document.
type Result struct {
	AuctionID string
	Fragments []Fragment
	Anomalies []Anomaly
	Dockets   int
}

// LayoutBreak returns a non-nil error when the document no longer matches the
// configured layout: docket anchors were found but no record could be closed,
// or records were closed without a header date to assign them to.
func (r *Result) LayoutBreak() error {
	if r.Dockets > 0 && len(r.Fragments) == 0 {
		return eris.Errorf("parser: layout break: %d docket anchors but no completed records", r.Dockets)
	}
	if len(r.Fragments) > 0 && r.AuctionID == "" {
		return eris.Errorf("parser: layout break: %d records but no auction header date", len(r.Fragments))
	}
	return nil
}

type state int

const (
	stateSeeking state = iota
	stateInRecord
	stateInChecklist
)

func (s state) String() string {
	switch s {
	case stateSeeking:
		return "seeking"
	case stateInRecord:
		return "in_record"
	case stateInChecklist:
		return "in_checklist"
	}
	return "unknown"
}

type machine struct {
	layout  Layout
	state   state
	slots   []string
	pending int
	page    int
	pp      bool
	res     *Result
}

// Parse runs the record state machine over every page of doc.
//
// Seeking: waiting for a docket anchor. InRecord: collecting field slots.
// InChecklist: consuming the checkbox columns that follow a band label.
// An address anchor closes the record and returns the machine to Seeking.
func Parse(doc *Document, layout Layout) *Result {
	m := &machine{layout: layout, res: &Result{}}
	if doc == nil {
		return m.res
	}

	skipHeader := false
	for pi, page := range doc.Pages {
		m.page = pi
		m.pp = page.PP
		if m.state == stateInChecklist {
			m.state = stateInRecord
			m.pending = 0
		}

		start := 0
		if skipHeader {
			start = layout.HeaderSkip
		}
		skipHeader = false

		for i := start; i < len(page.Texts); i++ {
			if m.step(page.Texts, i) {
				skipHeader = true
				break
			}
		}
	}
	if m.state != stateSeeking && len(m.slots) > 0 {
		m.anomaly(-1, "document ended inside a record")
	}
	return m.res
}

// step handles token i and reports whether the rest of the page is a
// repeated report header that must be abandoned.
func (m *machine) step(texts []Token, i int) bool {
	if m.state == stateInChecklist {
		m.pending--
		if m.pending <= 0 {
			m.state = stateInRecord
		}
		return false
	}

	tok := texts[i]
	if m.layout.ignored(tok.Y) {
		return false
	}
	text := tok.Text

	if m.res.AuctionID == "" && m.isHeader(text) {
		if id, ok := AuctionIDFromHeader(text); ok {
			m.res.AuctionID = id
		}
	}
	if m.layout.ReportMarker != "" && strings.Contains(text, m.layout.ReportMarker) {
		return true
	}

	if docketRe.MatchString(text) {
		if m.state != stateSeeking && len(m.slots) > 0 {
			m.anomaly(i, "record abandoned before an address anchor")
		}
		m.res.Dockets++
		m.slots = []string{text}
		m.state = stateInRecord
		return false
	}

	if m.state == stateSeeking {
		return false
	}

	if text == "" {
		m.anomaly(i, "token without text")
		return false
	}

	switch {
	case m.layout.inCheckboxBand(tok.X):
		m.beginChecklist(texts, i)
	case addressRe.MatchString(text):
		m.closeRecord(texts, i)
	case i > 0 && texts[i-1].X == tok.X:
		m.slots[len(m.slots)-1] += text
	default:
		m.slots = append(m.slots, text)
	}
	return false
}

func (m *machine) isHeader(text string) bool {
	for _, p := range m.layout.HeaderPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// beginChecklist pushes the band label and one Y/X mark per checkbox column,
// read positionally from the tokens that follow.
func (m *machine) beginChecklist(texts []Token, i int) {
	m.slots = append(m.slots, texts[i].Text)

	marked := 0
	available := 0
	for k := 1; k <= m.layout.CheckboxSpan; k++ {
		if i+k >= len(texts) {
			m.slots = append(m.slots, "X")
			continue
		}
		available++
		if texts[i+k].Text == "Y" {
			m.slots = append(m.slots, "Y")
			marked++
		} else {
			m.slots = append(m.slots, "X")
		}
	}
	if available < m.layout.CheckboxSpan {
		m.anomaly(i, "checkbox group truncated at page end")
	}

	m.pending = available
	if m.layout.CheckboxAdvance == AdvanceMarked {
		m.pending = marked
	}
	if m.pending > 0 {
		m.state = stateInChecklist
	}
}

// closeRecord collects every address in the span up to the next docket
// anchor, emits the fragment and returns the machine to Seeking.
func (m *machine) closeRecord(texts []Token, i int) {
	frag := Fragment{Page: m.page, Index: i, PP: m.pp}
	for j := i; j < len(texts) && !docketRe.MatchString(texts[j].Text); j++ {
		t := texts[j].Text
		if addressRe.MatchString(t) {
			frag.Addresses = append(frag.Addresses, t)
		}
		if freeAndClearRe.MatchString(t) {
			frag.FreeAndClear = true
		}
	}
	frag.Slots = m.slots

	m.res.Fragments = append(m.res.Fragments, frag)
	m.slots = nil
	m.state = stateSeeking
}

func (m *machine) anomaly(i int, reason string) {
	partial := append([]string(nil), m.slots...)
	m.res.Anomalies = append(m.res.Anomalies, Anomaly{
		Page:    m.page,
		Index:   i,
		Partial: partial,
		Reason:  reason,
	})
	zap.L().Warn("parser: token anomaly",
		zap.Int("page", m.page),
		zap.Int("index", i),
		zap.String("state", m.state.String()),
		zap.String("reason", reason),
		zap.Strings("partial", partial),
	)
}
