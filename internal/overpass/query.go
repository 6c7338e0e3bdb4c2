package overpass

import (
	"fmt"
	"strconv"

	"github.com/paulmach/osm"
)

// BoundsAround pads a center point by a fixed angular margin on every side
func BoundsAround(lat, lon, padding float64) *osm.Bounds {
	return &osm.Bounds{
		MinLat: lat - padding,
		MaxLat: lat + padding,
		MinLon: lon - padding,
		MaxLon: lon + padding,
	}
}

// BuildQuery returns an Overpass QL query selecting building ways and
// relations inside b, with their geometry inlined
func BuildQuery(b *osm.Bounds, timeout int) string {
	box := fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(b.MinLat), formatCoord(b.MinLon),
		formatCoord(b.MaxLat), formatCoord(b.MaxLon))

	return fmt.Sprintf(`[out:json][timeout:%d];
(
  way["building"](%s);
  relation["building"](%s);
);
out geom;`, timeout, box, box)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
