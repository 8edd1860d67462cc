package imaging

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"toonlab/internal/domain"
)

// KMeansOptions configures colour quantization.
type KMeansOptions struct {
	K        int
	MaxIter  int
	Epsilon  float64
	Attempts int
	// Seed makes the run reproducible when non-nil.
	Seed *uint64
	// MaxSamples caps the number of pixels used to fit centres; every pixel
	// is still labelled. Zero fits on all pixels.
	MaxSamples int
}

// DefaultKMeansOptions: 8 colours, 20 iterations or 0.001 shift, 10 restarts.
var DefaultKMeansOptions = KMeansOptions{K: 8, MaxIter: 20, Epsilon: 0.001, Attempts: 10}

// ClusterAssignment pairs the palette with a per-pixel label in [0, len(Centers)).
type ClusterAssignment struct {
	Centers [][3]uint8
	Labels  []int32
	Inertia float64
}

// Quantize reduces a 3-channel buffer to at most opts.K colours using
// randomised-restart k-means. Inputs with fewer pixels than clusters fail
// with domain.ErrProcessing.
func Quantize(src Buffer, opts KMeansOptions) (Buffer, ClusterAssignment, error) {
	if err := src.Validate(); err != nil {
		return Buffer{}, ClusterAssignment{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	if src.Channels != 3 {
		return Buffer{}, ClusterAssignment{}, fmt.Errorf("%w: quantize expects 3 channels, got %d", domain.ErrProcessing, src.Channels)
	}
	opts = opts.WithDefaults()

	n := src.Width * src.Height
	samples := make([]float32, len(src.Pix))
	for i, v := range src.Pix {
		samples[i] = float32(v)
	}

	rng := opts.rand()
	fit := samples
	if opts.MaxSamples > 0 && n > opts.MaxSamples {
		fit = subsample(samples, opts.MaxSamples, rng)
	}
	centers, _, inertia, err := kmeans(fit, opts, rng)
	if err != nil {
		return Buffer{}, ClusterAssignment{}, err
	}

	assign := ClusterAssignment{
		Centers: make([][3]uint8, opts.K),
		Labels:  make([]int32, n),
		Inertia: inertia,
	}
	for c := 0; c < opts.K; c++ {
		for j := 0; j < 3; j++ {
			assign.Centers[c][j] = truncateToUint8(centers[c*3+j])
		}
	}
	out := NewBuffer(src.Width, src.Height, src.Order)
	for i := 0; i < n; i++ {
		label, _ := nearest(samples[i*3:i*3+3], centers, opts.K)
		assign.Labels[i] = int32(label)
		copy(out.Pix[i*3:i*3+3], assign.Centers[label][:])
	}
	return out, assign, nil
}

// WithDefaults fills zero fields from DefaultKMeansOptions and keeps MaxIter >= 2.
func (o KMeansOptions) WithDefaults() KMeansOptions {
	d := DefaultKMeansOptions
	if o.K <= 0 {
		o.K = d.K
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.MaxIter < 2 {
		o.MaxIter = 2
	}
	if o.Epsilon <= 0 {
		o.Epsilon = d.Epsilon
	}
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	return o
}

func (o KMeansOptions) rand() *rand.Rand {
	if o.Seed != nil {
		return rand.New(rand.NewPCG(*o.Seed, *o.Seed^0x9e3779b97f4a7c15))
	}
	now := uint64(time.Now().UnixNano())
	return rand.New(rand.NewPCG(now, rand.Uint64()))
}

// kmeans clusters 3-component samples and returns the best of opts.Attempts
// runs by inertia.
func kmeans(samples []float32, opts KMeansOptions, rng *rand.Rand) ([]float32, []int32, float64, error) {
	n := len(samples) / 3
	k := opts.K
	if n < k {
		return nil, nil, 0, fmt.Errorf("%w: %d samples cannot form %d clusters", domain.ErrProcessing, n, k)
	}
	var lo, hi [3]float32
	for j := 0; j < 3; j++ {
		lo[j], hi[j] = samples[j], samples[j]
	}
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			v := samples[i*3+j]
			lo[j] = min(lo[j], v)
			hi[j] = max(hi[j], v)
		}
	}

	var (
		bestCenters []float32
		bestLabels  []int32
		bestInertia = math.Inf(1)
	)
	labels := make([]int32, n)
	centers := make([]float32, k*3)
	prev := make([]float32, k*3)
	sums := make([]float64, k*3)
	counts := make([]int, k)
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		randomCenters(centers, lo, hi, rng)
		for iter := 0; ; iter++ {
			for i := 0; i < n; i++ {
				label, _ := nearest(samples[i*3:i*3+3], centers, k)
				labels[i] = int32(label)
			}
			copy(prev, centers)
			clear(sums)
			clear(counts)
			for i := 0; i < n; i++ {
				c := int(labels[i])
				counts[c]++
				for j := 0; j < 3; j++ {
					sums[c*3+j] += float64(samples[i*3+j])
				}
			}
			for c := 0; c < k; c++ {
				if counts[c] == 0 {
					reseedEmpty(c, samples, labels, centers, counts)
					continue
				}
				for j := 0; j < 3; j++ {
					centers[c*3+j] = float32(sums[c*3+j] / float64(counts[c]))
				}
			}
			shift := 0.0
			for c := 0; c < k; c++ {
				shift = max(shift, sqDist(centers[c*3:c*3+3], prev[c*3:c*3+3]))
			}
			if iter+1 >= opts.MaxIter || math.Sqrt(shift) <= opts.Epsilon {
				break
			}
		}

		inertia := 0.0
		for i := 0; i < n; i++ {
			label, d := nearest(samples[i*3:i*3+3], centers, k)
			labels[i] = int32(label)
			inertia += d
		}
		if inertia < bestInertia {
			bestInertia = inertia
			bestCenters = append(bestCenters[:0], centers...)
			bestLabels = append(bestLabels[:0], labels...)
		}
	}
	return bestCenters, bestLabels, bestInertia, nil
}

// randomCenters draws centres uniformly inside the data bounding box,
// widened by a 1/3 margin on each axis.
func randomCenters(centers []float32, lo, hi [3]float32, rng *rand.Rand) {
	const margin = 1.0 / 3
	for c := 0; c < len(centers)/3; c++ {
		for j := 0; j < 3; j++ {
			r := rng.Float64()*(1+2*margin) - margin
			centers[c*3+j] = float32(r*float64(hi[j]-lo[j])) + lo[j]
		}
	}
}

// reseedEmpty moves the sample farthest from its centre into the empty cluster.
func reseedEmpty(empty int, samples []float32, labels []int32, centers []float32, counts []int) {
	far, farDist := -1, -1.0
	for i := 0; i < len(labels); i++ {
		c := int(labels[i])
		if counts[c] <= 1 {
			continue
		}
		if d := sqDist(samples[i*3:i*3+3], centers[c*3:c*3+3]); d > farDist {
			far, farDist = i, d
		}
	}
	if far < 0 {
		return
	}
	counts[labels[far]]--
	labels[far] = int32(empty)
	counts[empty] = 1
	copy(centers[empty*3:empty*3+3], samples[far*3:far*3+3])
}

func nearest(p []float32, centers []float32, k int) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c := 0; c < k; c++ {
		if d := sqDist(p, centers[c*3:c*3+3]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func sqDist(a, b []float32) float64 {
	d0 := float64(a[0] - b[0])
	d1 := float64(a[1] - b[1])
	d2 := float64(a[2] - b[2])
	return d0*d0 + d1*d1 + d2*d2
}

func subsample(samples []float32, limit int, rng *rand.Rand) []float32 {
	n := len(samples) / 3
	out := make([]float32, 0, limit*3)
	for range limit {
		i := rng.IntN(n)
		out = append(out, samples[i*3:i*3+3]...)
	}
	return out
}

func truncateToUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
