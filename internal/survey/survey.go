package survey

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmbuildings-go/internal/buildings"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
	"github.com/wegman-software/osmbuildings-go/internal/overpass"
	"github.com/wegman-software/osmbuildings-go/internal/tiles"
)

// Loader fetches raw building elements around a point
type Loader interface {
	LoadChunk(ctx context.Context, lat, lon float64) ([]overpass.Element, error)
}

// Recorder is told about every finished chunk (metrics)
type Recorder interface {
	ChunkDone(buildings int)
}

// Result holds the buildings found for one chunk
type Result struct {
	Chunk      tiles.Chunk          `json:"chunk"`
	Footprints []buildings.Building `json:"-"`
	Buildings  []buildings.Scaled   `json:"buildings"`
}

// Stats summarizes a survey run
type Stats struct {
	Chunks    int
	Buildings int
	Elapsed   time.Duration
}

// Surveyor runs the chunk -> fetch -> normalize -> scale pipeline
type Surveyor struct {
	loader         Loader
	recorder       Recorder
	workers        int
	metersPerLevel float64
}

// NewSurveyor creates a surveyor fetching up to workers chunks at once
func NewSurveyor(loader Loader, workers int, metersPerLevel float64) *Surveyor {
	if workers < 1 {
		workers = 1
	}
	return &Surveyor{
		loader:         loader,
		workers:        workers,
		metersPerLevel: metersPerLevel,
	}
}

// SetRecorder registers a chunk recorder
func (s *Surveyor) SetRecorder(r Recorder) {
	s.recorder = r
}

// Buildings fetches and projects the buildings around a single point
func (s *Surveyor) Buildings(ctx context.Context, lat, lon float64) ([]buildings.Building, []buildings.Scaled, error) {
	elements, err := s.loader.LoadChunk(ctx, lat, lon)
	if err != nil {
		return nil, nil, err
	}

	footprints := buildings.Normalize(elements)
	return footprints, buildings.Scale(footprints, s.metersPerLevel), nil
}

// Run surveys every distinct chunk around lat/lon. Chunks are fetched
// concurrently; the first failure cancels the rest and is returned.
// Results follow chunk enumeration order.
func (s *Surveyor) Run(ctx context.Context, lat, lon float64, radius int) ([]Result, Stats, error) {
	log := logger.Get()
	start := time.Now()

	chunks, err := tiles.GetChunks(lat, lon, radius)
	if err != nil {
		return nil, Stats{}, err
	}
	chunks = tiles.UniqueTiles(chunks)

	log.Info("Starting survey",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Int("radius", radius),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", s.workers))

	results := make([]Result, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			footprints, scaled, err := s.Buildings(gctx, chunk.Coords.Lat, chunk.Coords.Lon)
			if err != nil {
				return fmt.Errorf("chunk %s: %w", chunk.ID, err)
			}

			results[i] = Result{Chunk: chunk, Footprints: footprints, Buildings: scaled}
			if s.recorder != nil {
				s.recorder.ChunkDone(len(scaled))
			}

			log.Debug("Chunk surveyed",
				zap.Stringer("tile", chunk.ID),
				zap.Int("buildings", len(scaled)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{Chunks: len(results), Elapsed: time.Since(start)}
	for _, r := range results {
		stats.Buildings += len(r.Buildings)
	}

	log.Info("Survey complete",
		zap.Int("chunks", stats.Chunks),
		zap.Int("buildings", stats.Buildings),
		zap.Duration("elapsed", stats.Elapsed.Round(time.Millisecond)))

	return results, stats, nil
}
