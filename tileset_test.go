package rastersample_test

import (
	"errors"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-rastersample"
)

func TestEUDEM_Samples(t *testing.T) {
	if _, err := os.Stat("testdata/eu_dem"); errors.Is(err, fs.ErrNotExist) {
		t.Skip("missing eu_dem test data")
	}

	fsys := os.DirFS("testdata/eu_dem")
	euDEM, err := rastersample.NewEUDEM(fsys)
	assert.NoError(t, err)

	for i, tc := range []struct {
		requiredFiles []string
		coords        []rastersample.Coord
		expected      []float64
	}{
		{
			requiredFiles: []string{
				"eu_dem_v11_E00N20.TIF",
			},
			coords: []rastersample.Coord{
				{X: 38828, Y: 128409},
				{X: 38869, Y: 128276},
				{X: 38769, Y: 128500},
				{X: 38010, Y: 129217},
			},
			expected: []float64{
				517, // QGIS says 518.
				79,
				6,   // QGIS says 13.
				586, // QGIS says 593.
			},
		},
		{
			requiredFiles: []string{
				"eu_dem_v11_E30N50.TIF",
			},
			coords: []rastersample.Coord{
				{X: 121200, Y: 39860},
				{X: 122927, Y: 38914},
				{X: 127026, Y: 38936},
			},
			expected: []float64{
				1141.1373291015625, // QGIS says 1136.0043.
				892.5265502929688,  // QGIS says 889.7675.
				94.63605499267578,  // QGIS says 92.92097.
			},
		},
		{
			requiredFiles: []string{
				"eu_dem_v11_E00N20.TIF",
				"eu_dem_v11_E30N50.TIF",
			},
			coords: []rastersample.Coord{
				{X: 38828, Y: 128409},
				{X: 121200, Y: 39860},
				{X: 38869, Y: 128276},
				{X: 122927, Y: 38914},
				{X: 38769, Y: 128500},
				{X: 127026, Y: 38936},
				{X: 38010, Y: 129217},
			},
			expected: []float64{
				517, // QGIS says 518.
				1141.1373291015625,
				79,
				892.5265502929688,
				6, // QGIS says 13.
				94.63605499267578,
				586, // QGIS says 593.
			},
		},
		{
			requiredFiles: []string{
				"eu_dem_v11_E40N20.TIF",
			},
			coords: []rastersample.Coord{
				{X: 163089, Y: 138824},
				{X: 163067, Y: 136144},
				{X: 168287, Y: 133052},
			},
			expected: []float64{
				4712.9130859375,
				371.88299560546875,
				410.583984375,
			},
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			for _, filename := range tc.requiredFiles {
				if _, err := fsys.(fs.StatFS).Stat(filename); errors.Is(err, fs.ErrNotExist) {
					t.Skip(err)
				}
			}
			actual, err := euDEM.Samples(t.Context(), tc.coords)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestEUDEM_MissingTile(t *testing.T) {
	euDEM, err := rastersample.NewEUDEM(os.DirFS(t.TempDir()))
	assert.NoError(t, err)

	// All tiles missing: raw reads and interpolated values are NaN, never
	// errors.
	samples, err := euDEM.Samples(t.Context(), []rastersample.Coord{{X: 38828, Y: 128409}})
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(samples[0]))

	actual, ok, err := rastersample.InterpolateAtPoint(t.Context(), euDEM, 38828.5, 128409.5, rastersample.Bilinear)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, math.IsNaN(actual))
}

func TestEUDEM_PixelCoord(t *testing.T) {
	euDEM, err := rastersample.NewEUDEM(os.DirFS(t.TempDir()))
	assert.NoError(t, err)

	assert.Equal(t, 3035, euDEM.SRID())

	x, y := euDEM.PixelCoord(970705, 2789764)
	assertInDelta(t, 38828.2, x, 1e-9)
	assertInDelta(t, 128409.44, y, 1e-9)
}

func BenchmarkSingleTileSingleSample(b *testing.B) {
	if _, err := os.Stat("testdata/eu_dem"); err != nil {
		b.Skip("missing eu_dem test data")
	}
	r := rand.New(rand.NewPCG(0, 0))
	euDEM, err := rastersample.NewEUDEM(os.DirFS("testdata/eu_dem"))
	assert.NoError(b, err)
	b.ResetTimer()
	for range b.N {
		samples, err := euDEM.Samples(b.Context(), []rastersample.Coord{
			{
				X: 37880 + r.IntN(280),
				Y: 129080 + r.IntN(280),
			},
		})
		assert.NoError(b, err)
		assert.Equal(b, 1, len(samples))
		assert.False(b, math.IsNaN(samples[0]))
	}
}

func BenchmarkSingleTileBilinear(b *testing.B) {
	if _, err := os.Stat("testdata/eu_dem"); err != nil {
		b.Skip("missing eu_dem test data")
	}
	r := rand.New(rand.NewPCG(0, 0))
	euDEM, err := rastersample.NewEUDEM(os.DirFS("testdata/eu_dem"))
	assert.NoError(b, err)
	b.ResetTimer()
	for range b.N {
		x := 37880 + 280*r.Float64()
		y := 129080 + 280*r.Float64()
		sample, ok, err := rastersample.InterpolateAtPoint(b.Context(), euDEM, x, y, rastersample.Bilinear)
		assert.NoError(b, err)
		assert.True(b, ok)
		assert.False(b, math.IsNaN(sample))
	}
}
