// Package rastersample interpolates point samples from 2D raster bands.
//
// Coordinates use the pixel-corner convention: pixel (row r, column c)
// covers the half-open square [c, c+1) x [r, r+1), so (0, 0) is the
// top-left outer corner of the raster and (c+0.5, r+0.5) is the center of
// pixel (r, c).
package rastersample

import "context"

// A Coord is an integer pixel coordinate. X is the column, Y is the row.
type Coord struct {
	X int
	Y int
}

// A TileCoord is a tile coordinate.
type TileCoord struct {
	C int // Column.
	R int // Row.
}

// A Band is a single 2D grid of numeric samples. Samples returns the
// samples at coords, with NaN for samples that are unavailable (masked,
// no-data, or outside the grid). A non-nil error means a hard failure
// (for example an I/O error in the backing storage) and is never used for
// unavailable samples.
//
// A Band must be safe for concurrent reads if it is to be shared between
// concurrent interpolation calls.
type Band interface {
	Bounds() (width, height int)
	Samples(ctx context.Context, coords []Coord) ([]float64, error)
}
