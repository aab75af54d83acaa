package rastersample

import (
	"context"
	"io/fs"

	"github.com/twpayne/go-proj/v11"
)

// An EUDEMElevationService returns interpolated elevations from EU-DEM
// v1.1 data.
type EUDEMElevationService struct {
	tileSet *TileSet
	pj      *proj.PJ
}

func NewEUDEMElevationService(fsys fs.FS, options ...TileSetOption) (*EUDEMElevationService, error) {
	tileSet, err := NewEUDEM(fsys, options...)
	if err != nil {
		return nil, err
	}
	pj, err := proj.NewCRSToCRS("epsg:4326", "epsg:3035", nil)
	if err != nil {
		return nil, err
	}
	return &EUDEMElevationService{
		tileSet: tileSet,
		pj:      pj,
	}, nil
}

// Elevation returns the elevations at coords, which are (x, y) pairs in
// EPSG:3035, interpolated with method. Elevations outside the data are
// returned as NaN.
func (s *EUDEMElevationService) Elevation(ctx context.Context, coords [][]float64, method Method) ([]float64, error) {
	pointsFlat := make([]float64, 2*len(coords))
	points := make([][]float64, len(coords))
	for i, coord := range coords {
		x, y := s.tileSet.PixelCoord(coord[0], coord[1])
		points[i] = pointsFlat[2*i : 2*i+2]
		points[i][0] = x
		points[i][1] = y
	}
	return InterpolateAtPoints(ctx, s.tileSet, points, method)
}

// Elevation4326 returns the elevations at coords4326, which are
// (longitude, latitude) pairs in EPSG:4326, interpolated with method.
func (s *EUDEMElevationService) Elevation4326(ctx context.Context, coords4326 [][]float64, method Method) ([]float64, error) {
	coords3035 := cloneCoords(coords4326)
	flipCoords(coords3035)
	if err := s.pj.ForwardFloat64Slices(coords3035); err != nil {
		return nil, err
	}
	flipCoords(coords3035)
	return s.Elevation(ctx, coords3035, method)
}

func cloneCoords(coords [][]float64) [][]float64 {
	clonedCoordsFlat := make([]float64, 2*len(coords))
	clonedCoords := make([][]float64, len(coords))
	for i, coord := range coords {
		copy(clonedCoordsFlat[2*i:2*i+2], coord)
		clonedCoords[i] = clonedCoordsFlat[2*i : 2*i+2]
	}
	return clonedCoords
}

func flipCoords(coords [][]float64) {
	for i, coord := range coords {
		coords[i][0], coords[i][1] = coord[1], coord[0]
	}
}
