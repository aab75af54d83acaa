package rastersample

import (
	"fmt"
	"io/fs"
	"slices"
)

// EU-DEM v1.1 geometry: 25m pixels in EPSG:3035, 1000000m (40000 pixel)
// square tiles named by the ETRS89-LAEA coordinate of their south-west
// corner in units of 100km.
const (
	euDEMTileSize = 40000
	euDEMScale    = 25
)

// NewEUDEM returns a TileSet over an EU-DEM v1.1 data directory. The tile
// set's pixel grid has its origin at ETRS89-LAEA (0, 6000000) and covers
// the whole tiling scheme.
func NewEUDEM(fsys fs.FS, options ...TileSetOption) (*TileSet, error) {
	return NewTileSet(slices.Concat(
		[]TileSetOption{
			WithFS(fsys),
			WithSRID(3035),
			WithScale(euDEMScale, euDEMScale),
			WithOrigin(0, 6000000),
			WithExtent(8*euDEMTileSize, 6*euDEMTileSize),
			WithTileCoordFunc(func(coord Coord) (TileCoord, bool) {
				return TileCoord{
					C: 10 * (coord.X / euDEMTileSize),
					R: 50 - 10*(coord.Y/euDEMTileSize),
				}, true
			}),
			WithTileFilenameFunc(func(tileCoord TileCoord) string {
				return fmt.Sprintf("eu_dem_v11_E%02dN%02d.TIF", tileCoord.C, tileCoord.R)
			}),
		},
		options,
	)...)
}
