package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Redraw the map for the current auction from stored listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "render")
		if err != nil {
			return err
		}
		defer env.Close()

		out, globalPP, err := env.Cycle.RenderCurrent(ctx)
		if err != nil {
			return eris.Wrap(err, "render map")
		}

		zap.L().Info("map rendered",
			zap.String("auction_id", out.AuctionID),
			zap.Int("placemarks", out.Placemarks),
			zap.Int("dropped", out.Dropped),
			zap.Time("global_pp_date", globalPP),
			zap.String("kml", out.KMLPath),
		)
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
}
