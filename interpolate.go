package rastersample

import (
	"context"
	"errors"
	"math"
)

// A Method selects the reconstruction kernel used to interpolate a sample
// at a continuous coordinate.
type Method int

const (
	// Nearest returns the sample of the pixel containing the point. Under
	// the pixel-corner convention this is the pixel whose center is
	// nearest to the point; a coordinate exactly on a pixel boundary
	// resolves to the higher-indexed pixel.
	Nearest Method = iota
	// Bilinear blends the 2x2 window around the point linearly per axis.
	Bilinear
	// CubicSpline convolves the 4x4 window around the point with the
	// uniform cubic B-spline basis. The basis smooths: it does not
	// reproduce the raw samples at pixel centers.
	CubicSpline
)

// ErrUnsupportedMethod is returned when an unknown interpolation method is
// requested. The message is fixed.
var ErrUnsupportedMethod = errors.New("Only nearest, bilinear and cubicspline interpolation methods allowed")

func (m Method) valid() bool {
	return m == Nearest || m == Bilinear || m == CubicSpline
}

func (m Method) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case CubicSpline:
		return "cubicspline"
	default:
		return "unknown"
	}
}

// ParseMethod parses a method name as returned by [Method.String].
func ParseMethod(s string) (Method, error) {
	switch s {
	case "nearest":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	case "cubicspline":
		return CubicSpline, nil
	default:
		return 0, ErrUnsupportedMethod
	}
}

// An ErrorPolicy controls how a Sampler reports an unsupported method.
type ErrorPolicy int

const (
	// ErrorPolicyStrict returns ErrUnsupportedMethod to the caller.
	ErrorPolicyStrict ErrorPolicy = iota
	// ErrorPolicyQuiet returns no result and logs a warning through the
	// package logger, see [SetLogger].
	ErrorPolicyQuiet
)

// A Sampler interpolates point samples from raster bands. A Sampler holds
// no per-call state and is safe for concurrent use provided the bands it
// is given are safe for concurrent reads.
type Sampler struct {
	policy ErrorPolicy
}

// A SamplerOption sets an option on a Sampler.
type SamplerOption func(*Sampler)

// WithErrorPolicy sets the error policy for unsupported methods.
func WithErrorPolicy(policy ErrorPolicy) SamplerOption {
	return func(s *Sampler) {
		s.policy = policy
	}
}

// NewSampler returns a new Sampler with the given options. The default
// error policy is ErrorPolicyStrict.
func NewSampler(options ...SamplerOption) *Sampler {
	s := &Sampler{}
	for _, option := range options {
		option(s)
	}
	return s
}

var defaultSampler = NewSampler()

// InterpolateAtPoint interpolates band at (x, y) with method. It returns
// the interpolated value and true on success, and NaN and false when the
// window needed by method is not fully covered by available samples. A
// non-nil error means either an unsupported method or a hard failure in
// the band's storage, never an out-of-range query.
func (s *Sampler) InterpolateAtPoint(ctx context.Context, band Band, x, y float64, method Method) (float64, bool, error) {
	if !method.valid() {
		if s.policy == ErrorPolicyQuiet {
			Logger().Warn("unsupported interpolation method", "method", int(method))
			return math.NaN(), false, nil
		}
		return math.NaN(), false, ErrUnsupportedMethod
	}

	origin, size, dx, dy := window(method, x, y)
	width, height := band.Bounds()
	if origin.X < 0 || origin.Y < 0 || width < origin.X+size || height < origin.Y+size {
		return math.NaN(), false, nil
	}

	coords := make([]Coord, 0, size*size)
	for r := range size {
		for c := range size {
			coords = append(coords, Coord{X: origin.X + c, Y: origin.Y + r})
		}
	}
	samples, err := band.Samples(ctx, coords)
	if err != nil {
		return math.NaN(), false, err
	}
	for _, sample := range samples {
		if math.IsNaN(sample) {
			return math.NaN(), false, nil
		}
	}
	return evaluate(method, samples, dx, dy), true, nil
}

// InterpolateAtPoints interpolates band at each (x, y) point with method,
// fetching all windows in a single batched read. Points whose window is
// not fully covered by available samples are returned as NaN.
func (s *Sampler) InterpolateAtPoints(ctx context.Context, band Band, points [][]float64, method Method) ([]float64, error) {
	if !method.valid() {
		if s.policy == ErrorPolicyQuiet {
			Logger().Warn("unsupported interpolation method", "method", int(method))
			results := make([]float64, len(points))
			for i := range results {
				results[i] = math.NaN()
			}
			return results, nil
		}
		return nil, ErrUnsupportedMethod
	}

	width, height := band.Bounds()
	results := make([]float64, len(points))

	type pendingPoint struct {
		index  int
		offset int
		size   int
		dx     float64
		dy     float64
	}
	var pendingPoints []pendingPoint
	var coords []Coord
	for i, point := range points {
		origin, size, dx, dy := window(method, point[0], point[1])
		if origin.X < 0 || origin.Y < 0 || width < origin.X+size || height < origin.Y+size {
			results[i] = math.NaN()
			continue
		}
		pendingPoints = append(pendingPoints, pendingPoint{
			index:  i,
			offset: len(coords),
			size:   size,
			dx:     dx,
			dy:     dy,
		})
		for r := range size {
			for c := range size {
				coords = append(coords, Coord{X: origin.X + c, Y: origin.Y + r})
			}
		}
	}
	if len(coords) == 0 {
		return results, nil
	}

	samples, err := band.Samples(ctx, coords)
	if err != nil {
		return nil, err
	}
	for _, p := range pendingPoints {
		pointSamples := samples[p.offset : p.offset+p.size*p.size]
		available := true
		for _, sample := range pointSamples {
			if math.IsNaN(sample) {
				available = false
				break
			}
		}
		if !available {
			results[p.index] = math.NaN()
			continue
		}
		results[p.index] = evaluate(method, pointSamples, p.dx, p.dy)
	}
	return results, nil
}

// InterpolateAtPoint interpolates band at (x, y) with method using the
// strict error policy. See [Sampler.InterpolateAtPoint].
func InterpolateAtPoint(ctx context.Context, band Band, x, y float64, method Method) (float64, bool, error) {
	return defaultSampler.InterpolateAtPoint(ctx, band, x, y, method)
}

// InterpolateAtPoints interpolates band at points with method using the
// strict error policy. See [Sampler.InterpolateAtPoints].
func InterpolateAtPoints(ctx context.Context, band Band, points [][]float64, method Method) ([]float64, error) {
	return defaultSampler.InterpolateAtPoints(ctx, band, points, method)
}

// window returns the top-left pixel, side length, and fractional offsets
// of the window that method needs at (x, y). For the blending kernels the
// coordinate is first shifted by half a pixel per axis so that a
// coordinate on a pixel center has zero fractional offset, then split
// into integer and fractional parts.
func window(method Method, x, y float64) (origin Coord, size int, dx, dy float64) {
	if method == Nearest {
		return Coord{X: int(math.Floor(x)), Y: int(math.Floor(y))}, 1, 0, 0
	}
	xs, ys := x-0.5, y-0.5
	fx, fy := math.Floor(xs), math.Floor(ys)
	ix, iy := int(fx), int(fy)
	dx, dy = xs-fx, ys-fy
	if method == Bilinear {
		return Coord{X: ix, Y: iy}, 2, dx, dy
	}
	return Coord{X: ix - 1, Y: iy - 1}, 4, dx, dy
}

// evaluate applies method's kernel to the row-major window samples with
// fractional offsets (dx, dy).
func evaluate(method Method, samples []float64, dx, dy float64) float64 {
	switch method {
	case Bilinear:
		var window [2][2]float64
		for r := range 2 {
			for c := range 2 {
				window[r][c] = samples[2*r+c]
			}
		}
		return evaluateBilinear(&window, dx, dy)
	case CubicSpline:
		var window [4][4]float64
		for r := range 4 {
			for c := range 4 {
				window[r][c] = samples[4*r+c]
			}
		}
		return evaluateCubicSpline(&window, dx, dy)
	default:
		return samples[0]
	}
}

func evaluateBilinear(window *[2][2]float64, dx, dy float64) float64 {
	return 0 +
		window[0][0]*(1-dx)*(1-dy) +
		window[0][1]*dx*(1-dy) +
		window[1][0]*(1-dx)*dy +
		window[1][1]*dx*dy
}

// cubicSplineWeights returns the uniform cubic B-spline basis weights for
// the four taps at offsets -1, 0, 1, 2, parameterized by the fractional
// offset t in [0, 1).
func cubicSplineWeights(t float64) [4]float64 {
	u := 1 - t
	return [4]float64{
		u * u * u / 6,
		(3*t*t*t - 6*t*t + 4) / 6,
		(-3*t*t*t + 3*t*t + 3*t + 1) / 6,
		t * t * t / 6,
	}
}

func evaluateCubicSpline(window *[4][4]float64, dx, dy float64) float64 {
	wx := cubicSplineWeights(dx)
	wy := cubicSplineWeights(dy)
	var v float64
	for r := range 4 {
		var row float64
		for c := range 4 {
			row += wx[c] * window[r][c]
		}
		v += wy[r] * row
	}
	return v
}
