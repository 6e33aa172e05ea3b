// Package kde implements a Gaussian kernel density estimator evaluated
// on an FFT convolution grid.
//
// The density is computed once on a grid of at least max(n, MinGridSize)
// points spanning the sample range extended by Cut bandwidths on each
// side, with a further margin of 4 bandwidths for the circular
// convolution. Evaluation interpolates linearly between grid points and
// returns zero outside the grid.
package kde

import (
	"errors"
	"math"
	"math/cmplx"
	"sort"
	"sync"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var log = logging.MustGetLogger("kde")

const (
	// MinGridSize is the minimum number of grid points.
	MinGridSize = 512
	// Cut is the number of bandwidths added on each side of the
	// sample range.
	Cut = 3.0
	// margin is the number of bandwidths added to the grid range for
	// the convolution.
	margin = 4.0
)

var (
	// ErrInsufficientSample is returned when the bandwidth cannot
	// be estimated from the sample.
	ErrInsufficientSample = errors.New("insufficient sample size for bandwidth estimation")
	// ErrBounded is returned when a finite bound is requested.
	ErrBounded = errors.New("normal KDE must be unbounded")
)

// KDE is a normal kernel density estimate.
type KDE struct {
	sample    []float64
	bandwidth float64
	gridSize  int

	from, to float64
	lo, up   float64

	once    sync.Once
	xPoints []float64
	density []float64
}

type settings struct {
	gridSize  int
	bandwidth float64
	lower     float64
	upper     float64
}

// Option modifies KDE construction.
type Option func(*settings)

// GridSize sets the minimum grid size, it is rounded up to a power of
// two.
func GridSize(n int) Option {
	return func(s *settings) {
		s.gridSize = n
	}
}

// Bandwidth fixes the bandwidth instead of using the normal reference
// rule.
func Bandwidth(bw float64) Option {
	return func(s *settings) {
		s.bandwidth = bw
	}
}

// Bounds sets the support bounds. Only infinite bounds are accepted.
func Bounds(lower, upper float64) Option {
	return func(s *settings) {
		s.lower = lower
		s.upper = upper
	}
}

// New creates a KDE from a sample. The sample is copied.
func New(sample []float64, opts ...Option) (*KDE, error) {
	s := settings{
		gridSize: MinGridSize,
		lower:    math.Inf(-1),
		upper:    math.Inf(+1),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if !math.IsInf(s.lower, -1) || !math.IsInf(s.upper, +1) {
		return nil, ErrBounded
	}
	if len(sample) < 2 {
		return nil, ErrInsufficientSample
	}
	for _, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("sample contains non-finite values")
		}
	}

	k := &KDE{
		sample:   append([]float64(nil), sample...),
		gridSize: roundGridSize(max(s.gridSize, len(sample))),
	}

	if s.bandwidth > 0 {
		k.bandwidth = s.bandwidth
	} else {
		k.bandwidth = NormalReference(k.sample)
	}
	if !(k.bandwidth > 0) || math.IsInf(k.bandwidth, 0) {
		return nil, ErrInsufficientSample
	}

	k.from = floats.Min(k.sample) - Cut*k.bandwidth
	k.to = floats.Max(k.sample) + Cut*k.bandwidth
	k.lo = k.from - margin*k.bandwidth
	k.up = k.to + margin*k.bandwidth

	log.Debugf("KDE n=%d, bw=%g, grid=%d, range=[%g, %g]",
		len(k.sample), k.bandwidth, k.gridSize, k.lo, k.up)
	return k, nil
}

// roundGridSize returns max(n, MinGridSize) rounded up to a power of
// two.
func roundGridSize(n int) int {
	if n <= MinGridSize {
		return MinGridSize
	}
	return int(math.Pow(2, math.Ceil(math.Log(float64(n))/math.Log(2))))
}

// NormalReference computes the bandwidth using the normal reference
// rule: 1.06 * min(sd, IQR/1.34) * n^-0.2.
func NormalReference(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	h := (stat.Quantile(0.75, stat.Empirical, sorted, nil) -
		stat.Quantile(0.25, stat.Empirical, sorted, nil)) / 1.34
	sd := math.Sqrt(stat.Variance(x, nil))
	return 1.06 * math.Min(sd, h) * math.Pow(float64(len(x)), -0.2)
}

// Bandwidth returns the kernel bandwidth.
func (k *KDE) Bandwidth() float64 {
	return k.bandwidth
}

// From returns the lower end of the sample range extended by Cut
// bandwidths.
func (k *KDE) From() float64 {
	return k.from
}

// To returns the upper end of the sample range extended by Cut
// bandwidths.
func (k *KDE) To() float64 {
	return k.to
}

// N returns the sample size.
func (k *KDE) N() int {
	return len(k.sample)
}

// Grid returns grid abscissas and the density values.
func (k *KDE) Grid() (x, y []float64) {
	k.once.Do(k.compute)
	return k.xPoints, k.density
}

// Density returns the density at x, zero outside of the grid.
func (k *KDE) Density(x float64) float64 {
	k.once.Do(k.compute)
	return linearApproximate(k.xPoints, k.density, x, 0, 0)
}

// LogDensity returns the log density at x. It returns -Inf where the
// density is zero.
func (k *KDE) LogDensity(x float64) float64 {
	return math.Log(k.Density(x))
}

func (k *KDE) compute() {
	length := 2 * k.gridSize
	fft := fourier.NewCmplxFFT(length)

	kernel := k.kernelOrdinates(length)
	kernel = fft.Coefficients(nil, kernel)
	for i, c := range kernel {
		kernel[i] = cmplx.Conj(c)
	}

	y := massdist(k.sample, k.lo, k.up, k.gridSize)
	data := make([]complex128, length)
	for i, v := range y {
		data[i] = complex(v, 0)
	}
	data = fft.Coefficients(nil, data)
	for i := range data {
		data[i] *= kernel[i]
	}
	data = fft.Sequence(nil, data)

	k.density = rescaleAndTrim(data)

	k.xPoints = make([]float64, k.gridSize)
	x := k.lo
	delta := (k.up - k.lo) / float64(k.gridSize-1)
	for i := range k.xPoints {
		k.xPoints[i] = x
		x += delta
	}
}

// kernelOrdinates fills the Gaussian kernel over [0, 2(up-lo)]
// mirrored to negative distances for the circular convolution.
func (k *KDE) kernelOrdinates(length int) []complex128 {
	ord := make([]float64, length)
	inc := 2 * (k.up - k.lo) / float64(length-1)
	value := 0.0
	for i := 0; i <= k.gridSize; i++ {
		ord[i] = value
		value += inc
	}
	for i := k.gridSize + 1; i < length; i++ {
		ord[i] = -ord[length-i]
	}

	a := 1 / (math.Sqrt(2*math.Pi) * k.bandwidth)
	precision := -0.5 / (k.bandwidth * k.bandwidth)
	res := make([]complex128, length)
	for i, x := range ord {
		res[i] = complex(a*math.Exp(x*x*precision), 0)
	}
	return res
}

// massdist distributes the sample mass between neighbouring grid
// points (linear binning). The result has 2*ny cells, the upper half is
// zero padding.
func massdist(x []float64, xlow, xhigh float64, ny int) []float64 {
	y := make([]float64, 2*ny)
	ixmax := ny - 2
	xdelta := (xhigh - xlow) / float64(ny-1)
	xmi := 1 / float64(len(x))

	for _, v := range x {
		xpos := (v - xlow) / xdelta
		ix := int(math.Floor(xpos))
		fx := xpos - float64(ix)

		switch {
		case 0 <= ix && ix <= ixmax:
			y[ix] += (1 - fx) * xmi
			y[ix+1] += fx * xmi
		case ix == -1:
			y[0] += fx * xmi
		case ix == ixmax+1:
			y[ix] += (1 - fx) * xmi
		}
	}
	return y
}

// rescaleAndTrim keeps the first half of the inverse transform,
// rescales it by the transform length and clips negative noise.
func rescaleAndTrim(x []complex128) []float64 {
	n := len(x) / 2
	scale := 1 / float64(len(x))
	out := make([]float64, n)
	for i := range out {
		out[i] = real(x[i]) * scale
		if out[i] < 0 {
			out[i] = 0
		}
	}
	return out
}

// linearApproximate interpolates y at pt; x is sorted increasingly.
func linearApproximate(x, y []float64, pt, low, high float64) float64 {
	i := 0
	j := len(x) - 1

	if pt < x[i] {
		return low
	}
	if pt > x[j] {
		return high
	}

	for i < j-1 {
		ij := (i + j) / 2
		if pt < x[ij] {
			j = ij
		} else {
			i = ij
		}
	}

	if pt == x[j] {
		return y[j]
	}
	if pt == x[i] {
		return y[i]
	}
	return y[i] + (y[j]-y[i])*((pt-x[i])/(x[j]-x[i]))
}
