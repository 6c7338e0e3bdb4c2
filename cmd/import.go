package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmbuildings-go/internal/config"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
	"github.com/wegman-software/osmbuildings-go/internal/store"
)

var (
	dropExisting  bool
	createIndexes bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Survey a point and load the buildings into PostGIS",
	Long: `Run the full survey around a point and load the buildings into PostgreSQL:

  1. Enumerate the chunks and fetch every distinct tile from Overpass
  2. Normalize and project the footprints
  3. COPY them into the buildings table with EWKB geometry (SRID 4326)

The table is created if needed; its name comes from --db-schema and --db-table.`,
	Args: cobra.NoArgs,
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Float64Var(&centerLat, "lat", config.DefaultLat, "Latitude of the centre point")
	importCmd.Flags().Float64Var(&centerLon, "lon", config.DefaultLon, "Longitude of the centre point")
	importCmd.Flags().IntVarP(&cfg.Radius, "radius", "r", cfg.Radius, "Number of rings plus one")
	importCmd.Flags().Float64Var(&cfg.MetersPerLevel, "meters-per-level", cfg.MetersPerLevel, "Height of one storey in meters")
	importCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop the buildings table before loading")
	importCmd.Flags().BoolVar(&createIndexes, "create-indexes", true, "Create spatial and tile indexes after loading")
}

func runImport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	totalStart := time.Now()

	log.Info("Starting import",
		zap.Float64("lat", centerLat),
		zap.Float64("lon", centerLon),
		zap.Int("radius", cfg.Radius),
		zap.String("output", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)),
		zap.String("table", cfg.DBSchema+"."+cfg.DBTable),
		zap.Int("workers", cfg.Workers))

	// Connect before surveying so a bad DSN fails fast
	db, err := store.New(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect", err)
	}
	defer db.Close()

	if err := db.EnsureTable(ctx, dropExisting); err != nil {
		exitWithError("failed to prepare table", err)
	}

	collector := startMetrics(ctx)

	surveyStart := time.Now()
	results, stats, err := newSurveyor(collector).Run(ctx, centerLat, centerLon, cfg.Radius)
	if err != nil {
		exitWithError("survey failed", err)
	}
	surveyTime := time.Since(surveyStart)

	loadStart := time.Now()
	rows, err := db.Load(ctx, results)
	if err != nil {
		exitWithError("load failed", err)
	}

	if createIndexes {
		if err := db.CreateIndexes(ctx); err != nil {
			exitWithError("failed to create indexes", err)
		}
	}
	loadTime := time.Since(loadStart)

	collector.Log()
	log.Info("Import complete",
		zap.Int("chunks", stats.Chunks),
		zap.Int("buildings", stats.Buildings),
		zap.Int64("rows", rows),
		zap.Duration("survey_time", surveyTime.Round(time.Millisecond)),
		zap.Duration("load_time", loadTime.Round(time.Millisecond)),
		zap.Duration("total_time", time.Since(totalStart).Round(time.Millisecond)))
}
