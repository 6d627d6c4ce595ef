package enrich

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/fetcher"
	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/store"
)

// LawFirm is one row of the law-firm workbook.
type LawFirm struct {
	NameOnFile  string `json:"nameOnFile"`
	FirmDetails string `json:"firmDetails"`
	FirmRemarks string `json:"firmRemarks"`
	Comments    string `json:"comments"`
}

// LoadLawFirms reads the workbook at path. Columns A-D map to name on file,
// firm details, firm remarks and comments; the first row is a header. Rows
// without a name on file are dropped since they would match any attorney.
func LoadLawFirms(path, sheet string) ([]LawFirm, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet, SkipRows: 1})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load law firms")
	}

	firms := make([]LawFirm, 0, len(rows))
	for _, row := range rows {
		f := LawFirm{
			NameOnFile:  cell(row, 0),
			FirmDetails: cell(row, 1),
			FirmRemarks: cell(row, 2),
			Comments:    cell(row, 3),
		}
		if f.NameOnFile == "" {
			continue
		}
		firms = append(firms, f)
	}
	return firms, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// MatchLawFirm returns the first firm whose name on file occurs in attorney.
func MatchLawFirm(firms []LawFirm, attorney string) (LawFirm, bool) {
	for _, f := range firms {
		if f.NameOnFile != "" && strings.Contains(attorney, f.NameOnFile) {
			return f, true
		}
	}
	return LawFirm{}, false
}

func (o *Orchestrator) runLawFirms(ctx context.Context, auctionID string, pr *PassReport) {
	firms, err := o.lawFirms()
	if err != nil {
		zap.L().Warn("enrich: law firm table unavailable", zap.Error(err))
		pr.Error = err.Error()
		return
	}

	listings, ok := o.listings(ctx, store.ListingFilter{AuctionID: auctionID}, pr)
	if !ok {
		return
	}

	now := o.now()
	for i := range listings {
		l := &listings[i]
		pr.Attempted++

		firm, found := MatchLawFirm(firms, l.AttorneyName)
		status := model.StatusValid
		if !found {
			status = model.StatusFailed
		}
		changed := l.FirmName != firm.FirmDetails || l.ContactEmail != firm.FirmRemarks ||
			l.Enrichment.LawFirm.Effective(now) != status
		if !changed {
			pr.Skipped++
			continue
		}

		l.FirmName = firm.FirmDetails
		l.ContactEmail = firm.FirmRemarks
		l.Enrichment.Mark(model.SourceLawFirm, status, now)
		if !o.save(ctx, l) {
			pr.Failed++
			continue
		}
		if found {
			pr.Updated++
		} else {
			pr.Invalid++
		}
	}
}
