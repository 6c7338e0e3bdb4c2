package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wegman-software/osmbuildings-go/internal/config"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
	"github.com/wegman-software/osmbuildings-go/internal/metrics"
	"github.com/wegman-software/osmbuildings-go/internal/overpass"
	"github.com/wegman-software/osmbuildings-go/internal/survey"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osmbuildings-go",
	Short: "Locate OSM buildings around a point",
	Long: `osmbuildings-go finds OpenStreetMap buildings around a point and turns them
into extrudable footprints.

Features:
  - Zoom 15 tile chunks in rings around a centre point
  - Overpass queries with bounded retries
  - Ways and multipolygon members flattened into footprints
  - Footprints projected to local meters with a height from building:levels
  - GeoJSON export and PostGIS import`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := loadConfigFile(cmd.Flags(), configFile); err != nil {
				return err
			}
		}

		logger.Setup(cfg.Verbose, cfg.LogFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (flags override its values)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of chunks fetched in parallel")

	// Upstream flags
	rootCmd.PersistentFlags().StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Overpass API interpreter URL")
	rootCmd.PersistentFlags().IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries after a failed Overpass request")
	rootCmd.PersistentFlags().DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Delay between Overpass retries")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for survey metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	rootCmd.PersistentFlags().StringVar(&cfg.DBTable, "db-table", cfg.DBTable, "PostgreSQL table for buildings")
}

// loadConfigFile overlays path onto cfg, then re-applies the flags that
// were set explicitly on the command line
func loadConfigFile(flags *pflag.FlagSet, path string) error {
	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := config.LoadInto(cfg, path); err != nil {
		return err
	}

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Get().Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// newSurveyor wires the Overpass fetcher into a surveyor. With a
// collector, upstream attempts and finished chunks are counted.
func newSurveyor(collector *metrics.Collector) *survey.Surveyor {
	fetcher := overpass.NewFetcher(cfg, nil)
	s := survey.NewSurveyor(fetcher, cfg.Workers, cfg.MetersPerLevel)

	if collector != nil {
		fetcher.SetObserver(collector)
		s.SetRecorder(collector)
	}
	return s
}

// startMetrics runs a collector until ctx is done
func startMetrics(ctx context.Context) *metrics.Collector {
	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	go collector.Start(ctx)
	return collector
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
