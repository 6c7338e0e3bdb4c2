package overpass

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/osm"
)

// Point is a node position as returned by "out geom"
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member with its inlined geometry.
// Node members carry lat/lon but no geometry.
type Member struct {
	Type     osm.Type `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []Point  `json:"geometry,omitempty"`
}

// Element is one entry of the Overpass "elements" array.
// Ways carry Geometry, relations carry Members.
type Element struct {
	Type     osm.Type `json:"type"`
	ID       int64    `json:"id"`
	Tags     osm.Tags `json:"tags,omitempty"`
	Geometry []Point  `json:"geometry,omitempty"`
	Members  []Member `json:"members,omitempty"`
}

type elementJSON Element

// UnmarshalJSON decodes an element, dropping tags whose value is null so
// that a missing tag and an empty one stay distinguishable.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw struct {
		elementJSON
		Tags map[string]*string `json:"tags,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Element(raw.elementJSON)
	e.Tags = nil
	if raw.Tags != nil {
		e.Tags = make(osm.Tags, 0, len(raw.Tags))
		for k, v := range raw.Tags {
			if v != nil {
				e.Tags = append(e.Tags, osm.Tag{Key: k, Value: *v})
			}
		}
		e.Tags.SortByKeyValue()
	}
	return nil
}

// Response is the Overpass JSON envelope
type Response struct {
	Version   float64   `json:"version"`
	Generator string    `json:"generator"`
	Elements  []Element `json:"elements"`
	Remark    string    `json:"remark,omitempty"`
}

// StatusError reports a non-2xx answer from the endpoint
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("overpass returned status %d (%s)", e.StatusCode, e.Status)
}

// RemarkError reports a query Overpass aborted while still answering 200,
// typically a timeout or memory limit
type RemarkError struct {
	Remark string
}

func (e *RemarkError) Error() string {
	return fmt.Sprintf("overpass aborted the query: %s", e.Remark)
}
