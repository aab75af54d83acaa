package rastersample

import (
	"context"
	"errors"
	"math"
)

var errBandShape = errors.New("band rows must be non-empty and of equal length")

// A MemBand is an in-memory raster band. The zero value is not usable;
// use [NewMemBand] or [NewMemDataset].
type MemBand struct {
	width   int
	height  int
	samples []float64
}

// NewMemBand returns a new MemBand with the given samples, one row per
// inner slice, top row first. Unavailable (masked) cells are represented
// by NaN. Integer-valued sources should be widened to float64 by the
// caller; all arithmetic is performed in float64 regardless of the
// source type.
func NewMemBand(rows [][]float64) (*MemBand, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errBandShape
	}
	width := len(rows[0])
	samples := make([]float64, 0, len(rows)*width)
	for _, row := range rows {
		if len(row) != width {
			return nil, errBandShape
		}
		samples = append(samples, row...)
	}
	return &MemBand{
		width:   width,
		height:  len(rows),
		samples: samples,
	}, nil
}

// Bounds returns b's width and height.
func (b *MemBand) Bounds() (int, int) {
	return b.width, b.height
}

// Samples returns the samples at coords, with NaN for coordinates outside
// the band.
func (b *MemBand) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))
	for i, coord := range coords {
		if coord.X < 0 || b.width <= coord.X || coord.Y < 0 || b.height <= coord.Y {
			samples[i] = math.NaN()
			continue
		}
		samples[i] = b.samples[coord.Y*b.width+coord.X]
	}
	return samples, nil
}

// A MemDataset is a set of in-memory raster bands sharing the same
// extent, the in-memory analog of a multi-band raster file. Bands are
// independent: interpolating one band never reads another.
type MemDataset struct {
	bands []*MemBand
}

// NewMemDataset returns a new MemDataset with one band per element of
// bandRows. All bands must have the same dimensions.
func NewMemDataset(bandRows ...[][]float64) (*MemDataset, error) {
	if len(bandRows) == 0 {
		return nil, errors.New("at least one band required")
	}
	bands := make([]*MemBand, len(bandRows))
	for i, rows := range bandRows {
		band, err := NewMemBand(rows)
		if err != nil {
			return nil, err
		}
		if i > 0 && (band.width != bands[0].width || band.height != bands[0].height) {
			return nil, errors.New("bands must have equal dimensions")
		}
		bands[i] = band
	}
	return &MemDataset{bands: bands}, nil
}

// BandCount returns the number of bands in d.
func (d *MemDataset) BandCount() int {
	return len(d.bands)
}

// Band returns d's band with the given 1-based index.
func (d *MemDataset) Band(index int) *MemBand {
	return d.bands[index-1]
}
