package buildings

import (
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmbuildings-go/internal/overpass"
)

// LevelsTag is the OSM key carrying the number of storeys
const LevelsTag = "building:levels"

// DefaultLevels is used when an element has no usable levels tag
const DefaultLevels = "2"

// Building is one footprint with its raw levels value
type Building struct {
	Nodes  []overpass.Point `json:"nodes"`
	Levels string           `json:"levels"`
}

// levelsOf returns the levels tag or the default when the tag is absent.
// Null values never reach osm.Tags; an empty value is kept as is.
func levelsOf(tags osm.Tags) string {
	if tags.HasTag(LevelsTag) {
		return tags.Find(LevelsTag)
	}
	return DefaultLevels
}

// Normalize flattens ways and relations into one record per footprint.
// A relation yields one record per member, all sharing the relation's
// levels. Other element types are dropped. Input order is preserved.
func Normalize(elements []overpass.Element) []Building {
	out := make([]Building, 0, len(elements))

	for _, e := range elements {
		switch e.Type {
		case osm.TypeWay:
			out = append(out, Building{Nodes: e.Geometry, Levels: levelsOf(e.Tags)})

		case osm.TypeRelation:
			levels := levelsOf(e.Tags)
			for _, m := range e.Members {
				out = append(out, Building{Nodes: m.Geometry, Levels: levels})
			}
		}
	}

	return out
}
