package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/osmbuildings-go/internal/buildings"
	"github.com/wegman-software/osmbuildings-go/internal/tiles"
)

// ChunksFeatureCollection renders each chunk as its tile polygon.
// Repeated tiles are kept so the collection mirrors the chunk list.
func ChunksFeatureCollection(chunks []tiles.Chunk) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, c := range chunks {
		bound, ok := c.ID.Bound()
		if !ok {
			continue
		}

		f := geojson.NewFeature(bound.ToPolygon())
		f.Properties["index"] = i
		f.Properties["z"] = c.ID.Z
		f.Properties["x"] = c.ID.X
		f.Properties["y"] = c.ID.Y
		f.Properties["lat"] = c.Coords.Lat
		f.Properties["lon"] = c.Coords.Lon
		fc.Append(f)
	}

	return fc
}

// BuildingsFeatureCollection renders footprints in WGS84 with their
// levels and height. scaled must be the Scale output for footprints;
// a shorter slice leaves height off the remaining features.
func BuildingsFeatureCollection(footprints []buildings.Building, scaled []buildings.Scaled) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, b := range footprints {
		geom := b.Geometry()
		if geom == nil {
			continue
		}

		f := geojson.NewFeature(geom)
		f.Properties["levels"] = b.Levels
		if i < len(scaled) {
			f.Properties["height"] = scaled[i].Height
			if ref := scaled[i].ReferencePoint; ref != nil {
				f.Properties["ref_lat"] = ref.Lat
				f.Properties["ref_lon"] = ref.Lon
			}
		}
		fc.Append(f)
	}

	return fc
}

// WriteJSON encodes v to w, indented when pretty is set
func WriteJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
