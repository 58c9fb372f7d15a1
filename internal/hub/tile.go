package hub

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileID names the slippy-map tile containing (lat, lon) as "z/x/y".
func TileID(lat, lon float64, zoom int) string {
	return format(maptile.At(orb.Point{lon, lat}, maptile.Zoom(zoom)))
}

func format(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// ParseTileID reads a "z/x/y" tile id. Out of range coordinates are rejected.
func ParseTileID(tileID string) (maptile.Tile, bool) {
	var z, x, y int
	n, err := fmt.Sscanf(tileID, "%d/%d/%d", &z, &x, &y)
	if err != nil || n != 3 || z < 0 || z > 22 {
		return maptile.Tile{}, false
	}
	limit := 1 << z
	if x < 0 || y < 0 || x >= limit || y >= limit {
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), true
}

// TileBound returns the geographic bound of a tile id.
func TileBound(tileID string) (orb.Bound, bool) {
	t, ok := ParseTileID(tileID)
	if !ok {
		return orb.Bound{}, false
	}
	return t.Bound(), true
}

// AdjacentTiles returns the tile plus its in-range neighbours.
func AdjacentTiles(tileID string) []string {
	t, ok := ParseTileID(tileID)
	if !ok {
		return nil
	}
	limit := int64(1) << t.Z
	tiles := make([]string, 0, 9)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			nx, ny := int64(t.X)+dx, int64(t.Y)+dy
			if nx < 0 || ny < 0 || nx >= limit || ny >= limit {
				continue
			}
			tiles = append(tiles, format(maptile.New(uint32(nx), uint32(ny), t.Z)))
		}
	}
	return tiles
}

// TilesInBound lists every tile at zoom that intersects b.
func TilesInBound(b orb.Bound, zoom int) []string {
	z := maptile.Zoom(zoom)
	topLeft := maptile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
	bottomRight := maptile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)

	var tiles []string
	for x := topLeft.X; x <= bottomRight.X; x++ {
		for y := topLeft.Y; y <= bottomRight.Y; y++ {
			tiles = append(tiles, format(maptile.New(x, y, z)))
		}
	}
	return tiles
}
