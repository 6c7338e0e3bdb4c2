package tiles

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultZoom is the only zoom level chunks are enumerated at
const DefaultZoom = 15

// Web Mercator constants
const (
	// Maximum latitude for Web Mercator (approximately 85.051129°)
	MaxMercatorLat = 85.0511287798
	// Minimum latitude for Web Mercator
	MinMercatorLat = -85.0511287798
)

// ErrLatitudeOutOfRange is returned for points the Mercator tiling cannot represent
var ErrLatitudeOutOfRange = errors.New("latitude outside web mercator range")

// Tile represents a map tile at a specific zoom level
type Tile struct {
	Z int `json:"z"` // Zoom level
	X int `json:"x"` // Column
	Y int `json:"y"` // Row
}

// String returns the tile in z/x/y format
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid reports whether the tile lies inside the world grid for its zoom.
// Ring offsets near the antimeridian or the poles can step outside it.
func (t Tile) Valid() bool {
	if t.Z < 0 || t.Z > 30 {
		return false
	}
	n := 1 << t.Z
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// Bound returns the tile extent as [lon, lat] bounds.
// The second value is false for tiles outside the world grid.
func (t Tile) Bound() (orb.Bound, bool) {
	if !t.Valid() {
		return orb.Bound{}, false
	}
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Z)).Bound(), true
}

// LatLon is a WGS84 coordinate
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CheckLatLon rejects coordinates the tile formula would turn into garbage
func CheckLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return fmt.Errorf("%w: NaN coordinate", ErrLatitudeOutOfRange)
	}
	if lat > MaxMercatorLat || lat < MinMercatorLat {
		return fmt.Errorf("%w: %f", ErrLatitudeOutOfRange, lat)
	}
	return nil
}

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level.
// Uses the standard Web Mercator tile scheme without clamping; inputs should
// pass CheckLatLon first.
func LatLonToTile(lat, lon float64, zoom int) Tile {
	n := math.Exp2(float64(zoom))

	x := math.Floor((lon + 180.0) / 360.0 * n)

	latRad := lat * math.Pi / 180.0
	y := math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)

	return Tile{Z: zoom, X: int(x), Y: int(y)}
}

// TileToLatLon returns the north-west corner of a tile. It does not
// recover the point a tile was computed from.
func TileToLatLon(t Tile) LatLon {
	n := math.Exp2(float64(t.Z))
	k := math.Pi - 2.0*math.Pi*float64(t.Y)/n

	return LatLon{
		Lat: 180.0 / math.Pi * math.Atan(math.Sinh(k)),
		Lon: float64(t.X)/n*360.0 - 180.0,
	}
}
