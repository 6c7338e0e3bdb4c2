package cmd

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"github.com/wegman-software/osmbuildings-go/internal/export"
)

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "Fetch the buildings of every chunk around a point",
	Long: `Enumerate the chunks around a point, fetch each distinct tile from Overpass
in parallel and print the projected buildings per chunk (json) or all
footprints as one feature collection (geojson).

The first chunk that still fails after all retries aborts the survey.`,
	Args: cobra.NoArgs,
	Run:  runSurvey,
}

func init() {
	rootCmd.AddCommand(surveyCmd)

	addPointFlags(surveyCmd)
	surveyCmd.Flags().IntVarP(&cfg.Radius, "radius", "r", cfg.Radius, "Number of rings plus one")
	surveyCmd.Flags().Float64Var(&cfg.MetersPerLevel, "meters-per-level", cfg.MetersPerLevel, "Height of one storey in meters")
	surveyCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or geojson")
}

func runSurvey(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	if outputFormat != "json" && outputFormat != "geojson" {
		exitWithError("invalid format", fmt.Errorf("unknown format %q (want json or geojson)", outputFormat))
	}

	ctx, cancel := signalContext()
	defer cancel()

	collector := startMetrics(ctx)

	results, _, err := newSurveyor(collector).Run(ctx, centerLat, centerLon, cfg.Radius)
	if err != nil {
		exitWithError("survey failed", err)
	}
	collector.Log()

	var out any = results
	if outputFormat == "geojson" {
		fc := geojson.NewFeatureCollection()
		for _, r := range results {
			fc.Features = append(fc.Features, export.BuildingsFeatureCollection(r.Footprints, r.Buildings).Features...)
		}
		out = fc
	}

	if err := export.WriteJSON(os.Stdout, out, pretty); err != nil {
		exitWithError("failed to write output", err)
	}
}
