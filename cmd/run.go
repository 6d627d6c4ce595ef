package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full cycle: fetch, parse, reconcile, enrich, render",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Cycle.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("cycle complete",
			zap.String("run_id", result.Run.ID),
			zap.String("auction_id", result.AuctionID),
			zap.String("status", string(result.Run.Status)),
			zap.Int("listings", len(result.Listings)),
		)

		if runJSON {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printSummary(cmd.OutOrStdout(), result)
		return nil
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

// printSummary writes one line per phase followed by the totals.
func printSummary(w io.Writer, res *pipeline.RunResult) {
	fmt.Fprintf(w, "run %s: %s (auction %s)\n", res.Run.ID, res.Run.Status, orNone(res.AuctionID))
	for _, p := range res.Run.Phases {
		if p.Status == model.PhaseStatusFailed {
			fmt.Fprintf(w, "  %-10s %-8s %6dms  %s\n", p.Name, p.Status, p.Duration, p.Error)
			continue
		}
		fmt.Fprintf(w, "  %-10s %-8s %6dms\n", p.Name, p.Status, p.Duration)
	}
	fmt.Fprintf(w, "listings: %d\n", len(res.Listings))
	if res.Render != nil {
		fmt.Fprintf(w, "map: %d placemarks, %d without coordinates\n", res.Render.Placemarks, res.Render.Dropped)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	rootCmd.AddCommand(runCmd)
}
