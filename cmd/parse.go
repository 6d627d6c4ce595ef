package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/normalize"
	"github.com/sells-group/sheriff-sales/internal/parser"
)

var (
	parseFile string
	parsePP   bool
)

// parseOutput is what the parse command prints.
type parseOutput struct {
	AuctionID string           `json:"auction_id"`
	Listings  []model.Listing  `json:"listings"`
	Anomalies []parser.Anomaly `json:"anomalies,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a pdf2json document into listings without touching the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseFile == "" {
			return eris.New("--file is required")
		}

		layout, err := parser.LayoutFromConfig(cfg.Layout)
		if err != nil {
			return eris.Wrap(err, "load layout")
		}

		out, err := parseDocument(parseFile, parsePP, layout)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func parseDocument(path string, isPP bool, layout parser.Layout) (*parseOutput, error) {
	doc, err := parser.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	if isPP {
		doc.MarkPostponement()
	}

	res := parser.Parse(doc, layout)
	if err := res.LayoutBreak(); err != nil {
		return nil, err
	}
	for _, a := range res.Anomalies {
		zap.L().Warn("parse anomaly", zap.Int("token", a.Index), zap.String("reason", a.Reason))
	}

	listings := normalize.NormalizeAll(res, isPP, layout)
	if listings == nil {
		listings = []model.Listing{}
	}
	return &parseOutput{
		AuctionID: res.AuctionID,
		Listings:  listings,
		Anomalies: res.Anomalies,
	}, nil
}

func init() {
	parseCmd.Flags().StringVar(&parseFile, "file", "", "pdf2json output to parse")
	parseCmd.Flags().BoolVar(&parsePP, "pp", false, "treat the document as the postponement list")
	rootCmd.AddCommand(parseCmd)
}
