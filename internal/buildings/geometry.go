package buildings

import (
	"github.com/paulmach/orb"
)

// Geometry returns the footprint in [lon, lat] order. A closed ring of at
// least four nodes is a Polygon, two or more nodes a LineString, a single
// node a Point. Empty buildings return nil.
func (b Building) Geometry() orb.Geometry {
	switch len(b.Nodes) {
	case 0:
		return nil
	case 1:
		return orb.Point{b.Nodes[0].Lon, b.Nodes[0].Lat}
	}

	ls := make(orb.LineString, len(b.Nodes))
	for i, n := range b.Nodes {
		ls[i] = orb.Point{n.Lon, n.Lat}
	}

	ring := orb.Ring(ls)
	if len(ring) >= 4 && ring.Closed() {
		return orb.Polygon{ring}
	}
	return ls
}
