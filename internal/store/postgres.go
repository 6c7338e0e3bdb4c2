package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/wegman-software/osmbuildings-go/internal/config"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
	"github.com/wegman-software/osmbuildings-go/internal/survey"
)

// SRID of every stored footprint (WGS84)
const SRID = 4326

const loadTable = "osm_buildings_load_tmp"

// copyColumns is the column order produced by buildingRows
var copyColumns = []string{
	"tile_z", "tile_x", "tile_y",
	"levels", "height",
	"ref_lat", "ref_lon",
	"local_nodes", "geom_wkb",
}

// Store writes surveyed buildings into a PostGIS table
type Store struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	table string
}

// New connects to PostgreSQL using the database settings in cfg
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(max(cfg.Workers, 1))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Store{
		cfg:   cfg,
		pool:  pool,
		table: pgx.Identifier{cfg.DBSchema, cfg.DBTable}.Sanitize(),
	}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureTable creates the PostGIS extension, schema and buildings table
func (s *Store) EnsureTable(ctx context.Context, dropExisting bool) error {
	log := logger.Get()

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	if s.cfg.DBSchema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.cfg.DBSchema}.Sanitize())
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if dropExisting {
		log.Info("Dropping buildings table", zap.String("table", s.table))
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", s.table)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			tile_z INTEGER NOT NULL,
			tile_x INTEGER NOT NULL,
			tile_y INTEGER NOT NULL,
			levels TEXT NOT NULL,
			height DOUBLE PRECISION NOT NULL,
			ref_lat DOUBLE PRECISION,
			ref_lon DOUBLE PRECISION,
			local_nodes JSONB NOT NULL,
			geom GEOMETRY(Geometry, 4326)
		)
	`, s.table)

	if _, err := s.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	log.Info("Buildings table ready", zap.String("table", s.table))
	return nil
}

// Load copies every building of results into the table in one
// transaction and returns the number of rows written
func (s *Store) Load(ctx context.Context, results []survey.Result) (int64, error) {
	rows, err := buildingRows(results)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempSQL := fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			tile_z INTEGER,
			tile_x INTEGER,
			tile_y INTEGER,
			levels TEXT,
			height DOUBLE PRECISION,
			ref_lat DOUBLE PRECISION,
			ref_lon DOUBLE PRECISION,
			local_nodes TEXT,
			geom_wkb BYTEA
		) ON COMMIT DROP
	`, loadTable)

	if _, err := tx.Exec(ctx, tempSQL); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{loadTable}, copyColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	// EWKB already carries the SRID
	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (tile_z, tile_x, tile_y, levels, height, ref_lat, ref_lon, local_nodes, geom)
		SELECT
			tile_z, tile_x, tile_y,
			levels, height,
			ref_lat, ref_lon,
			local_nodes::jsonb,
			ST_GeomFromEWKB(geom_wkb)
		FROM %s
	`, s.table, loadTable)

	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to insert buildings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	logger.Get().Info("Buildings loaded",
		zap.String("table", s.table),
		zap.Int64("rows", tag.RowsAffected()))

	return tag.RowsAffected(), nil
}

// CreateIndexes adds the spatial and tile indexes and analyzes the table
func (s *Store) CreateIndexes(ctx context.Context) error {
	log := logger.Get()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	base := s.cfg.DBTable
	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: base + "_geom_idx",
			sql:  "CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
		},
		{
			name: base + "_tile_idx",
			sql:  "CREATE INDEX IF NOT EXISTS %s ON %s (tile_z, tile_x, tile_y)",
		},
	}

	for _, idx := range indexes {
		log.Info("Creating index", zap.String("name", idx.name))
		sql := fmt.Sprintf(idx.sql, pgx.Identifier{idx.name}.Sanitize(), s.table)
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", s.table)); err != nil {
		return fmt.Errorf("failed to analyze %s: %w", s.table, err)
	}

	return nil
}

// buildingRows flattens survey results into COPY rows. Footprints
// without geometry are skipped.
func buildingRows(results []survey.Result) ([][]any, error) {
	var rows [][]any

	for _, r := range results {
		for i, b := range r.Footprints {
			geom := b.Geometry()
			if geom == nil || i >= len(r.Buildings) {
				continue
			}
			scaled := r.Buildings[i]

			geomWKB, err := ewkb.Marshal(geom, SRID)
			if err != nil {
				return nil, fmt.Errorf("tile %s: %w", r.Chunk.ID, err)
			}

			nodes, err := json.Marshal(scaled.Nodes)
			if err != nil {
				return nil, fmt.Errorf("tile %s: failed to encode nodes: %w", r.Chunk.ID, err)
			}

			var refLat, refLon any
			if scaled.ReferencePoint != nil {
				refLat, refLon = scaled.ReferencePoint.Lat, scaled.ReferencePoint.Lon
			}

			rows = append(rows, []any{
				r.Chunk.ID.Z, r.Chunk.ID.X, r.Chunk.ID.Y,
				b.Levels, scaled.Height,
				refLat, refLon,
				string(nodes), geomWKB,
			})
		}
	}

	return rows, nil
}
