package cmd

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmbuildings-go/internal/config"
	"github.com/wegman-software/osmbuildings-go/internal/export"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
	"github.com/wegman-software/osmbuildings-go/internal/tiles"
)

var (
	centerLat    float64
	centerLon    float64
	outputFormat string
	pretty       bool
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "List the zoom 15 tile chunks around a point",
	Long: `List the chunks surveyed around a point. Each ring r (1 <= r < radius)
contributes the centre tile and its eight neighbours at distance r, so the
centre tile repeats once per ring.`,
	Args: cobra.NoArgs,
	Run:  runChunks,
}

func init() {
	rootCmd.AddCommand(chunksCmd)

	addPointFlags(chunksCmd)
	chunksCmd.Flags().IntVarP(&cfg.Radius, "radius", "r", cfg.Radius, "Number of rings plus one")
	chunksCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or geojson")
}

// addPointFlags registers the centre point and output flags
func addPointFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&centerLat, "lat", config.DefaultLat, "Latitude of the centre point")
	cmd.Flags().Float64Var(&centerLon, "lon", config.DefaultLon, "Longitude of the centre point")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
}

func runChunks(cmd *cobra.Command, args []string) {
	log := logger.Get()

	chunks, err := tiles.GetChunks(centerLat, centerLon, cfg.Radius)
	if err != nil {
		exitWithError("invalid centre point", err)
	}

	log.Debug("Chunks enumerated",
		zap.Int("chunks", len(chunks)),
		zap.Int("unique", len(tiles.UniqueTiles(chunks))))

	var out any
	switch outputFormat {
	case "json":
		out = chunks
	case "geojson":
		out = export.ChunksFeatureCollection(chunks)
	default:
		exitWithError("invalid format", fmt.Errorf("unknown format %q (want json or geojson)", outputFormat))
	}

	if err := export.WriteJSON(os.Stdout, out, pretty); err != nil {
		exitWithError("failed to write output", err)
	}
}
