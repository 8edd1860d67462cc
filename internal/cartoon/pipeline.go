// Package cartoon runs the cartoon filters: an edge mask from the grayscale
// image combined with a flattened colour image. A pipeline is one ordered
// list of stages; debug requests pick an intermediate artifact off that list.
package cartoon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"

	"toonlab/internal/domain"
	"toonlab/internal/imaging"
	"toonlab/internal/infra"
)

// Quantizer reduces the palette of a colour buffer.
type Quantizer interface {
	Quantize(src imaging.Buffer) (imaging.Buffer, error)
}

// Smoother flattens texture while keeping strong edges.
type Smoother interface {
	Smooth(src imaging.Buffer) (imaging.Buffer, error)
}

// Engine supplies the pixel primitives behind the edge, quantize and smooth
// stages. A nil Engine selects the pure-Go implementations in imaging.
type Engine interface {
	EdgeMask(gray imaging.Buffer, p imaging.EdgeParams) (imaging.Buffer, error)
	Quantize(src imaging.Buffer, opts imaging.KMeansOptions) (imaging.Buffer, error)
	Bilateral(src imaging.Buffer, p imaging.BilateralParams) (imaging.Buffer, error)
}

// KMeansQuantizer adapts Engine.Quantize, or imaging.Quantize without one.
type KMeansQuantizer struct {
	Options imaging.KMeansOptions
	Engine  Engine
}

func (q KMeansQuantizer) Quantize(src imaging.Buffer) (imaging.Buffer, error) {
	if q.Engine != nil {
		return q.Engine.Quantize(src, q.Options)
	}
	out, _, err := imaging.Quantize(src, q.Options)
	return out, err
}

// BilateralSmoother adapts Engine.Bilateral, or imaging.Bilateral without one.
type BilateralSmoother struct {
	Params imaging.BilateralParams
	Engine Engine
}

func (s BilateralSmoother) Smooth(src imaging.Buffer) (imaging.Buffer, error) {
	if s.Engine != nil {
		return s.Engine.Bilateral(src, s.Params)
	}
	return imaging.Bilateral(src, s.Params)
}

// Config describes one filter variant.
type Config struct {
	Name  string
	Edges imaging.EdgeParams
	// ColorOrder selects which decoded view feeds the colour branch.
	ColorOrder imaging.ChannelOrder
	// Quantizer is optional. Without it the smoothed image stands in for
	// both the color_reduced and blurred stages.
	Quantizer Quantizer
	Smoother  Smoother
	OnFailure FailurePolicy
	Encode    imaging.EncodeOptions
	// Engine computes the edge mask when set.
	Engine Engine
	// MaxPixels bounds decoded uploads; zero means imaging.DefaultMaxPixels.
	MaxPixels int
	Logger    *infra.Logger
}

// Pipeline is a configured filter variant. It holds no per-request state.
type Pipeline struct {
	cfg    Config
	logger *infra.Logger
}

// Artifact is the output of one stage.
type Artifact struct {
	Stage Stage
	Image imaging.Buffer
}

// Result is an encoded pipeline output.
type Result struct {
	Data        []byte
	ContentType string
	Stage       Stage
	// FellBack is set when a stage failed and the original was returned.
	FellBack bool
	Cause    error
}

// New validates cfg and builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Name == "" {
		return nil, errors.New("cartoon: pipeline name is required")
	}
	if cfg.Smoother == nil {
		return nil, fmt.Errorf("cartoon: %s: smoother is required", cfg.Name)
	}
	if cfg.ColorOrder != imaging.OrderRGB && cfg.ColorOrder != imaging.OrderBGR {
		return nil, fmt.Errorf("cartoon: %s: colour order must be rgb or bgr", cfg.Name)
	}
	if cfg.OnFailure == "" {
		cfg.OnFailure = Propagate
	}
	if cfg.Encode.Format == "" {
		cfg.Encode = imaging.DefaultEncodeOptions
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = imaging.DefaultMaxPixels
	}
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// Name returns the filter name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// Policy returns the configured failure policy.
func (p *Pipeline) Policy() FailurePolicy { return p.cfg.OnFailure }

type runState struct {
	in      imaging.Decoded
	gray    imaging.Buffer
	edges   imaging.Buffer
	reduced imaging.Buffer
	blurred imaging.Buffer
}

type step struct {
	stage Stage
	run   func(*runState) (imaging.Buffer, error)
}

func (p *Pipeline) steps() []step {
	return []step{
		{StageOriginal, func(s *runState) (imaging.Buffer, error) {
			return s.in.BGR, nil
		}},
		{StageGrayscale, func(s *runState) (imaging.Buffer, error) {
			var err error
			s.gray, err = imaging.Grayscale(s.in.BGR)
			return s.gray, err
		}},
		{StageEdges, func(s *runState) (imaging.Buffer, error) {
			var err error
			if p.cfg.Engine != nil {
				s.edges, err = p.cfg.Engine.EdgeMask(s.gray, p.cfg.Edges)
			} else {
				s.edges, err = imaging.EdgeMask(s.gray, p.cfg.Edges)
			}
			return s.edges, err
		}},
		{StageColorReduced, func(s *runState) (imaging.Buffer, error) {
			src := s.in.RGB
			if p.cfg.ColorOrder == imaging.OrderBGR {
				src = s.in.BGR
			}
			var err error
			if p.cfg.Quantizer != nil {
				s.reduced, err = p.cfg.Quantizer.Quantize(src)
			} else {
				s.reduced, err = p.cfg.Smoother.Smooth(src)
			}
			return s.reduced, err
		}},
		{StageBlurred, func(s *runState) (imaging.Buffer, error) {
			if p.cfg.Quantizer == nil {
				s.blurred = s.reduced
				return s.blurred, nil
			}
			var err error
			s.blurred, err = p.cfg.Smoother.Smooth(s.reduced)
			return s.blurred, err
		}},
		{StageFinal, func(s *runState) (imaging.Buffer, error) {
			return imaging.MaskAnd(s.blurred, s.edges)
		}},
	}
}

// Stages lazily yields every stage artifact in order. Iteration stops at the
// first failing stage, which is yielded with a non-nil error. Each call
// starts a fresh run.
func (p *Pipeline) Stages(ctx context.Context, in imaging.Decoded) iter.Seq2[Artifact, error] {
	return func(yield func(Artifact, error) bool) {
		state := &runState{in: in}
		for _, st := range p.steps() {
			if err := ctx.Err(); err != nil {
				yield(Artifact{Stage: st.stage}, err)
				return
			}
			img, err := runStep(st, state)
			if err != nil {
				yield(Artifact{Stage: st.stage}, fmt.Errorf("cartoon %s: %s: %w", p.cfg.Name, st.stage, err))
				return
			}
			if !yield(Artifact{Stage: st.stage, Image: img}, nil) {
				return
			}
		}
	}
}

func runStep(st step, state *runState) (img imaging.Buffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrProcessing, r)
		}
	}()
	img, err = st.run(state)
	if err != nil && !errors.Is(err, domain.ErrProcessing) {
		err = fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	return img, err
}

// Apply decodes data, runs the pipeline up to stage and encodes that
// artifact. An empty stage runs to StageFinal. Decode failures always
// surface as domain.ErrDecode; later failures follow the failure policy.
func (p *Pipeline) Apply(ctx context.Context, data []byte, stage Stage) (*Result, error) {
	decoded, err := imaging.DecodeLimited(data, p.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}
	if stage == "" {
		stage = StageFinal
	}
	for art, err := range p.Stages(ctx, decoded) {
		if err != nil {
			return p.fail(ctx, decoded, err)
		}
		if art.Stage != stage {
			continue
		}
		out, err := imaging.Encode(art.Image, p.cfg.Encode)
		if err != nil {
			return p.fail(ctx, decoded, err)
		}
		return &Result{Data: out, ContentType: p.cfg.Encode.ContentType(), Stage: stage}, nil
	}
	return nil, fmt.Errorf("%w: cartoon %s: unknown stage %q", domain.ErrProcessing, p.cfg.Name, stage)
}

func (p *Pipeline) fail(ctx context.Context, decoded imaging.Decoded, cause error) (*Result, error) {
	if ctx.Err() != nil || p.cfg.OnFailure != FallbackToOriginal {
		return nil, cause
	}
	p.logger.Warn().Err(cause).Str("filter", p.cfg.Name).Msg("cartoon: stage failed, returning original image")
	out, err := imaging.Encode(decoded.BGR, p.cfg.Encode)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	return &Result{
		Data:        out,
		ContentType: p.cfg.Encode.ContentType(),
		Stage:       StageOriginal,
		FellBack:    true,
		Cause:       cause,
	}, nil
}

// EncodedArtifact is a stage artifact ready to be written out.
type EncodedArtifact struct {
	Stage       Stage
	Data        []byte
	ContentType string
	Extension   string
}

// CollectStages runs the whole pipeline and encodes every artifact. On a
// stage failure the artifacts produced so far are returned with the error.
func (p *Pipeline) CollectStages(ctx context.Context, data []byte) ([]EncodedArtifact, error) {
	decoded, err := imaging.DecodeLimited(data, p.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}
	ext := ".jpg"
	if p.cfg.Encode.ContentType() == "image/png" {
		ext = ".png"
	}
	var out []EncodedArtifact
	for art, err := range p.Stages(ctx, decoded) {
		if err != nil {
			return out, err
		}
		encoded, err := imaging.Encode(art.Image, p.cfg.Encode)
		if err != nil {
			return out, fmt.Errorf("cartoon %s: encode %s: %w", p.cfg.Name, art.Stage, err)
		}
		out = append(out, EncodedArtifact{
			Stage:       art.Stage,
			Data:        encoded,
			ContentType: p.cfg.Encode.ContentType(),
			Extension:   ext,
		})
	}
	return out, nil
}
