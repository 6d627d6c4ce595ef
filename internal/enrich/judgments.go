package enrich

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/sheriff-sales/internal/fetcher"
	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/normalize"
	"github.com/sells-group/sheriff-sales/internal/store"
)

// JudgmentSource yields judgment amounts keyed by docket number.
type JudgmentSource interface {
	Judgments(ctx context.Context) (map[string]float64, error)
}

// shortDocketLen is the length below which a docket span holds only the
// numeric part and the prefix sits in the preceding text node.
const shortDocketLen = 10

// ParseJudgments extracts docket to judgment amount pairs from the legal
// journal's sheriff-sale notice page. Dockets and amounts are paired by
// position; unparsable amounts are dropped.
func ParseJudgments(r io.Reader) (map[string]float64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: parse judgments html")
	}

	amounts := doc.Find("#notice_appraised_amount")
	out := make(map[string]float64)

	doc.Find("span#notice_case_number").Each(func(i int, s *goquery.Selection) {
		docket := docketText(s)
		if docket == "" || i >= amounts.Length() {
			return
		}
		amount := normalize.ParseMoney(amounts.Eq(i).Text())
		if amount == nil {
			zap.L().Debug("enrich: unparsable judgment amount",
				zap.String("docket", docket),
				zap.String("raw", amounts.Eq(i).Text()),
			)
			return
		}
		out[docket] = *amount
	})
	return out, nil
}

func docketText(s *goquery.Selection) string {
	text := strings.TrimSpace(s.Text())
	if len(text) >= shortDocketLen || len(s.Nodes) == 0 {
		return text
	}
	if prev := s.Nodes[0].PrevSibling; prev != nil && prev.Type == html.TextNode {
		return strings.TrimSpace(prev.Data) + text
	}
	return text
}

// HTTPJudgments fetches the notice page over HTTP.
type HTTPJudgments struct {
	Fetcher fetcher.Fetcher
	URL     string
}

// Judgments implements JudgmentSource.
func (h *HTTPJudgments) Judgments(ctx context.Context) (map[string]float64, error) {
	body, err := h.Fetcher.Download(ctx, h.URL)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: fetch judgments")
	}
	defer body.Close() //nolint:errcheck
	return ParseJudgments(body)
}

func (o *Orchestrator) runJudgments(ctx context.Context, auctionID string, pr *PassReport) {
	judgments, err := o.judgments.Judgments(ctx)
	if err != nil {
		zap.L().Warn("enrich: judgments unavailable", zap.Error(err))
		pr.Error = err.Error()
		return
	}
	if len(judgments) == 0 {
		return
	}

	dockets := make([]string, 0, len(judgments))
	for d := range judgments {
		dockets = append(dockets, d)
	}
	listings, ok := o.listings(ctx, store.ListingFilter{AuctionID: auctionID, DocketNumbers: dockets}, pr)
	if !ok {
		return
	}

	now := o.now()
	for i := range listings {
		l := &listings[i]
		amount, found := judgments[l.DocketNumber]
		if !found {
			continue
		}
		pr.Attempted++
		l.Judgment = &amount
		l.Enrichment.Mark(model.SourceJudgment, model.StatusValid, now)
		if o.save(ctx, l) {
			pr.Updated++
		} else {
			pr.Failed++
		}
	}
}
