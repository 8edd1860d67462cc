package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"

	"toonlab/internal/domain"
)

// EdgeParams configures the median + adaptive-threshold edge mask.
type EdgeParams struct {
	MedianSize int
	BlockSize  int
	Offset     float64
}

// Grayscale collapses a colour buffer to one luma channel (0.299, 0.587, 0.114).
func Grayscale(src Buffer) (Buffer, error) {
	if src.Channels == 1 {
		return src.Clone(), src.Validate()
	}
	img, err := src.ToImage()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: grayscale: %v", domain.ErrProcessing, err)
	}
	return drawGift(img, gift.Grayscale()), nil
}

// MedianBlur replaces each sample with the median of its size x size square
// neighbourhood. size must be odd.
func MedianBlur(src Buffer, size int) (Buffer, error) {
	if size < 1 || size%2 == 0 {
		return Buffer{}, fmt.Errorf("%w: median size %d must be odd", domain.ErrProcessing, size)
	}
	if src.Channels != 1 {
		return Buffer{}, fmt.Errorf("%w: median blur expects one channel, got %d", domain.ErrProcessing, src.Channels)
	}
	img, err := src.ToImage()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: median blur: %v", domain.ErrProcessing, err)
	}
	return drawGift(img, gift.Median(size, false)), nil
}

func drawGift(src image.Image, filters ...gift.Filter) Buffer {
	g := gift.New(filters...)
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return FromImage(dst, OrderGray)
}

// AdaptiveThresholdMean binarizes a gray buffer against the mean of the
// blockSize x blockSize window around each sample, borders replicated.
// A sample becomes 255 when src - mean > -ceil(offset), otherwise 0.
func AdaptiveThresholdMean(src Buffer, blockSize int, offset float64) (Buffer, error) {
	if blockSize < 3 || blockSize%2 == 0 {
		return Buffer{}, fmt.Errorf("%w: block size %d must be odd and >= 3", domain.ErrProcessing, blockSize)
	}
	if src.Channels != 1 {
		return Buffer{}, fmt.Errorf("%w: threshold expects one channel, got %d", domain.ErrProcessing, src.Channels)
	}
	if err := src.Validate(); err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	w, h := src.Width, src.Height
	half := blockSize / 2
	area := blockSize * blockSize

	// horizontal window sums, then vertical sums over them
	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		line := src.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			sum := 0
			for k := -half; k <= half; k++ {
				sum += int(line[clampInt(x+k, 0, w-1)])
			}
			rows[y*w+x] = sum
		}
	}

	delta := int(math.Ceil(offset))
	out := NewBuffer(w, h, OrderGray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -half; k <= half; k++ {
				sum += rows[clampInt(y+k, 0, h-1)*w+x]
			}
			mean := (sum + area/2) / area
			if int(src.Pix[y*w+x])-mean > -delta {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out, nil
}

// EdgeMask runs the median blur and adaptive threshold over a gray buffer.
func EdgeMask(gray Buffer, p EdgeParams) (Buffer, error) {
	blurred, err := MedianBlur(gray, p.MedianSize)
	if err != nil {
		return Buffer{}, err
	}
	return AdaptiveThresholdMean(blurred, p.BlockSize, p.Offset)
}

// clampInt clamps v to [lo,hi]
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
