package tiles

// DefaultRadius is the ring count used when callers don't specify one
const DefaultRadius = 5

// Chunk is a tile paired with the coordinates of its north-west corner
type Chunk struct {
	ID     Tile   `json:"id"`
	Coords LatLon `json:"coords"`
}

// ringOffsets are scaled by the ring index. (0,0) is kept in the list, so the
// center tile comes back once per ring.
var ringOffsets = [9][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 0}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// GetChunks returns (radius-1)*9 chunks around the tile containing lat/lon.
// Ring r contributes the eight tiles at distance r along the axes and
// diagonals plus the center; it is not a gap-free square tiling.
func GetChunks(lat, lon float64, radius int) ([]Chunk, error) {
	if err := CheckLatLon(lat, lon); err != nil {
		return nil, err
	}

	center := LatLonToTile(lat, lon, DefaultZoom)

	if radius <= 1 {
		return []Chunk{}, nil
	}

	chunks := make([]Chunk, 0, (radius-1)*len(ringOffsets))
	for r := 1; r < radius; r++ {
		for _, off := range ringOffsets {
			id := Tile{
				Z: center.Z,
				X: center.X + off[0]*r,
				Y: center.Y + off[1]*r,
			}
			chunks = append(chunks, Chunk{ID: id, Coords: TileToLatLon(id)})
		}
	}

	return chunks, nil
}

// UniqueTiles drops repeated tiles, keeping the first occurrence order
func UniqueTiles(chunks []Chunk) []Chunk {
	seen := make(map[Tile]struct{}, len(chunks))
	unique := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}
