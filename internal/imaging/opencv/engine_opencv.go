//go:build opencv

package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"toonlab/internal/domain"
	"toonlab/internal/imaging"
)

// Engine wraps gocv. It holds no Mats between calls and is safe for
// concurrent use.
type Engine struct{}

func New() (*Engine, error) {
	return &Engine{}, nil
}

// EdgeMask applies cv::medianBlur then cv::adaptiveThreshold (mean, binary).
func (*Engine) EdgeMask(gray imaging.Buffer, p imaging.EdgeParams) (imaging.Buffer, error) {
	if gray.Channels != 1 {
		return imaging.Buffer{}, fmt.Errorf("%w: edge mask expects one channel, got %d", domain.ErrProcessing, gray.Channels)
	}
	src, err := toMat(gray)
	if err != nil {
		return imaging.Buffer{}, err
	}
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.MedianBlur(src, &blurred, p.MedianSize)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.AdaptiveThreshold(blurred, &mask, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, p.BlockSize, float32(p.Offset))
	return fromMat(mask, gray)
}

// Bilateral applies cv::bilateralFilter.
func (*Engine) Bilateral(src imaging.Buffer, p imaging.BilateralParams) (imaging.Buffer, error) {
	in, err := toMat(src)
	if err != nil {
		return imaging.Buffer{}, err
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.BilateralFilter(in, &out, p.Diameter, p.SigmaColor, p.SigmaSpace)
	return fromMat(out, src)
}

// Quantize runs cv::kmeans with random centres over every pixel and repaints
// each pixel with its truncated centre. MaxSamples is ignored; a Seed is fed
// to cv::setRNGSeed, which is process-wide.
func (*Engine) Quantize(src imaging.Buffer, opts imaging.KMeansOptions) (imaging.Buffer, error) {
	if err := src.Validate(); err != nil {
		return imaging.Buffer{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	if src.Channels != 3 {
		return imaging.Buffer{}, fmt.Errorf("%w: quantize expects 3 channels, got %d", domain.ErrProcessing, src.Channels)
	}
	opts = opts.WithDefaults()
	n := src.Width * src.Height
	if n < opts.K {
		return imaging.Buffer{}, fmt.Errorf("%w: %d pixels for %d clusters", domain.ErrProcessing, n, opts.K)
	}

	raw, err := gocv.NewMatFromBytes(n, 3, gocv.MatTypeCV8U, src.Pix)
	if err != nil {
		return imaging.Buffer{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	defer raw.Close()
	samples := gocv.NewMat()
	defer samples.Close()
	raw.ConvertTo(&samples, gocv.MatTypeCV32F)

	if opts.Seed != nil {
		gocv.SetRNGSeed(int(*opts.Seed & 0x7fffffff))
	}
	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, opts.MaxIter, opts.Epsilon)
	gocv.KMeans(samples, opts.K, &labels, criteria, opts.Attempts, gocv.KMeansRandomCenters, &centers)
	if labels.Rows() != n || centers.Rows() != opts.K {
		return imaging.Buffer{}, fmt.Errorf("%w: kmeans returned %d labels and %d centres", domain.ErrProcessing, labels.Rows(), centers.Rows())
	}

	palette := make([][3]uint8, opts.K)
	for c := range palette {
		for j := 0; j < 3; j++ {
			palette[c][j] = truncate(centers.GetFloatAt(c, j))
		}
	}
	out := imaging.NewBuffer(src.Width, src.Height, src.Order)
	for i := 0; i < n; i++ {
		copy(out.Pix[i*3:i*3+3], palette[labels.GetIntAt(i, 0)][:])
	}
	return out, nil
}

func toMat(b imaging.Buffer) (gocv.Mat, error) {
	if err := b.Validate(); err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	mt := gocv.MatTypeCV8UC3
	if b.Channels == 1 {
		mt = gocv.MatTypeCV8UC1
	}
	m, err := gocv.NewMatFromBytes(b.Height, b.Width, mt, b.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	return m, nil
}

// fromMat copies m into a buffer shaped like like.
func fromMat(m gocv.Mat, like imaging.Buffer) (imaging.Buffer, error) {
	if m.Empty() || m.Rows() != like.Height || m.Cols() != like.Width {
		return imaging.Buffer{}, fmt.Errorf("%w: opencv returned %dx%d for %dx%d", domain.ErrProcessing, m.Cols(), m.Rows(), like.Width, like.Height)
	}
	out := imaging.NewBuffer(like.Width, like.Height, like.Order)
	copy(out.Pix, m.ToBytes())
	return out, nil
}

func truncate(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
