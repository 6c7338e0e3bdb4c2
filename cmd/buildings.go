package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmbuildings-go/internal/export"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
)

var buildingsCmd = &cobra.Command{
	Use:   "buildings",
	Short: "Fetch the buildings around a single point",
	Long: `Query Overpass for the buildings in a small box around a point and print
them as local-meter footprints with heights (json), as WGS84 features
(geojson) or as the normalized footprints before projection (raw).`,
	Args: cobra.NoArgs,
	Run:  runBuildings,
}

func init() {
	rootCmd.AddCommand(buildingsCmd)

	addPointFlags(buildingsCmd)
	buildingsCmd.Flags().Float64Var(&cfg.MetersPerLevel, "meters-per-level", cfg.MetersPerLevel, "Height of one storey in meters")
	buildingsCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json, geojson or raw")
}

func runBuildings(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	if outputFormat != "json" && outputFormat != "geojson" && outputFormat != "raw" {
		exitWithError("invalid format", fmt.Errorf("unknown format %q (want json, geojson or raw)", outputFormat))
	}

	ctx, cancel := signalContext()
	defer cancel()

	footprints, scaled, err := newSurveyor(nil).Buildings(ctx, centerLat, centerLon)
	if err != nil {
		exitWithError("failed to load buildings", err)
	}

	log.Info("Buildings loaded",
		zap.Float64("lat", centerLat),
		zap.Float64("lon", centerLon),
		zap.Int("buildings", len(scaled)))

	var out any
	switch outputFormat {
	case "json":
		out = scaled
	case "geojson":
		out = export.BuildingsFeatureCollection(footprints, scaled)
	case "raw":
		out = footprints
	}

	if err := export.WriteJSON(os.Stdout, out, pretty); err != nil {
		exitWithError("failed to write output", err)
	}
}
