package cartoon

import (
	"errors"
	"fmt"
	"sort"

	"toonlab/internal/domain"
	"toonlab/internal/imaging"
	"toonlab/internal/infra"
)

const (
	FilterCartoonA = "cartoon_a"
	FilterCartoonB = "cartoon_b"
)

// Options carries the knobs shared by the built-in variants.
type Options struct {
	KMeans imaging.KMeansOptions
	Encode imaging.EncodeOptions
	Logger *infra.Logger
	// Engine replaces the pure-Go pixel primitives, e.g. with OpenCV.
	Engine Engine
	// MaxPixels bounds decoded uploads; zero means imaging.DefaultMaxPixels.
	MaxPixels int
	// Policies overrides the per-variant failure policy by filter name.
	Policies map[string]FailurePolicy
}

func (o Options) policy(name string, fallback FailurePolicy) FailurePolicy {
	if p, ok := o.Policies[name]; ok && p != "" {
		return p
	}
	return fallback
}

// NewCartoonA quantizes the RGB image to eight colours, smooths it, and
// masks it with a block 9 / offset 5 edge mask. Stage failures fall back to
// the original image unless overridden.
func NewCartoonA(opts Options) (*Pipeline, error) {
	return New(Config{
		Name:       FilterCartoonA,
		Edges:      imaging.EdgeParams{MedianSize: 5, BlockSize: 9, Offset: 5},
		ColorOrder: imaging.OrderRGB,
		Quantizer:  KMeansQuantizer{Options: opts.KMeans, Engine: opts.Engine},
		Smoother:   BilateralSmoother{Params: imaging.DefaultBilateralParams, Engine: opts.Engine},
		OnFailure:  opts.policy(FilterCartoonA, FallbackToOriginal),
		Encode:     opts.Encode,
		Engine:     opts.Engine,
		MaxPixels:  opts.MaxPixels,
		Logger:     opts.Logger,
	})
}

// NewCartoonB smooths the original BGR image without quantization and masks
// it with a block 9 / offset 9 edge mask. Stage failures propagate unless
// overridden.
func NewCartoonB(opts Options) (*Pipeline, error) {
	return New(Config{
		Name:       FilterCartoonB,
		Edges:      imaging.EdgeParams{MedianSize: 5, BlockSize: 9, Offset: 9},
		ColorOrder: imaging.OrderBGR,
		Smoother:   BilateralSmoother{Params: imaging.DefaultBilateralParams, Engine: opts.Engine},
		OnFailure:  opts.policy(FilterCartoonB, Propagate),
		Encode:     opts.Encode,
		Engine:     opts.Engine,
		MaxPixels:  opts.MaxPixels,
		Logger:     opts.Logger,
	})
}

// Registry resolves filter names to pipelines.
type Registry struct {
	pipelines map[string]*Pipeline
}

// NewRegistry indexes the given pipelines by name.
func NewRegistry(pipelines ...*Pipeline) *Registry {
	r := &Registry{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		r.pipelines[p.Name()] = p
	}
	return r
}

// DefaultRegistry builds cartoon_a and cartoon_b.
func DefaultRegistry(opts Options) (*Registry, error) {
	a, errA := NewCartoonA(opts)
	b, errB := NewCartoonB(opts)
	if err := errors.Join(errA, errB); err != nil {
		return nil, err
	}
	return NewRegistry(a, b), nil
}

// Get returns the named pipeline or domain.ErrNotFound.
func (r *Registry) Get(name string) (*Pipeline, error) {
	if r != nil {
		if p, ok := r.pipelines[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: filter %q", domain.ErrNotFound, name)
}

// Names lists the registered filters in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
