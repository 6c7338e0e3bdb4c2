package buildings

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/wegman-software/osmbuildings-go/internal/overpass"
	"github.com/wegman-software/osmbuildings-go/internal/proj"
)

// DefaultMetersPerLevel is the storey height used for extrusion
const DefaultMetersPerLevel = 3.0

// XY is a position in meters relative to a reference point
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Scaled is a footprint in local meters with an extrusion height
type Scaled struct {
	Nodes          []XY            `json:"nodes"`
	Height         float64         `json:"height"`
	ReferencePoint *overpass.Point `json:"reference_point,omitempty"`
}

// ParseLevels reads the leading integer of a levels value: "3" -> 3,
// "3.5" -> 3, " 4 floors" -> 4. Anything without a leading integer is 0.
func ParseLevels(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Scale projects each building around its own first node.
// Coordinates are rounded to centimeters. Buildings without nodes become
// an empty footprint of height 0 with no reference point.
func Scale(buildings []Building, metersPerLevel float64) []Scaled {
	out := make([]Scaled, 0, len(buildings))

	for _, b := range buildings {
		if len(b.Nodes) == 0 {
			out = append(out, Scaled{Nodes: []XY{}, Height: 0})
			continue
		}

		ref := b.Nodes[0]
		nodes := make([]XY, len(b.Nodes))
		for i, n := range b.Nodes {
			x, y := proj.LocalMeters(n.Lat, n.Lon, ref.Lat, ref.Lon)
			nodes[i] = XY{X: proj.Round2(x), Y: proj.Round2(y)}
		}

		out = append(out, Scaled{
			Nodes:          nodes,
			Height:         float64(ParseLevels(b.Levels)) * metersPerLevel,
			ReferencePoint: &ref,
		})
	}

	return out
}
