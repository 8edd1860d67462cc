//go:build opencv

package opencv

import (
	"errors"
	"testing"

	"toonlab/internal/domain"
	"toonlab/internal/imaging"
)

func TestEdgeMaskIsBinary(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gray := imaging.NewBuffer(16, 16, imaging.OrderGray)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if x >= 8 {
				gray.Pix[y*16+x] = 200
			}
		}
	}
	mask, err := e.EdgeMask(gray, imaging.EdgeParams{MedianSize: 3, BlockSize: 5, Offset: 2})
	if err != nil {
		t.Fatalf("EdgeMask: %v", err)
	}
	if mask.Width != 16 || mask.Height != 16 || mask.Channels != 1 {
		t.Fatalf("shape = %dx%dx%d", mask.Height, mask.Width, mask.Channels)
	}
	dark := 0
	for _, v := range mask.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("sample %d is not binary", v)
		}
		if v == 0 {
			dark++
		}
	}
	if dark == 0 {
		t.Fatalf("step edge produced no dark samples")
	}
}

func TestQuantizePalette(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := imaging.NewBuffer(8, 8, imaging.OrderBGR)
	for i := 0; i < 64; i++ {
		if i%2 == 0 {
			copy(src.Pix[i*3:i*3+3], []uint8{250, 10, 10})
		} else {
			copy(src.Pix[i*3:i*3+3], []uint8{10, 10, 250})
		}
	}
	seed := uint64(7)
	out, err := e.Quantize(src, imaging.KMeansOptions{K: 2, Seed: &seed})
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if out.Order != imaging.OrderBGR || len(out.Pix) != len(src.Pix) {
		t.Fatalf("output shape changed")
	}
	for i := range out.Pix {
		if d := int(out.Pix[i]) - int(src.Pix[i]); d < -1 || d > 1 {
			t.Fatalf("sample %d = %d, want ~%d", i, out.Pix[i], src.Pix[i])
		}
	}

	tiny := imaging.NewBuffer(1, 1, imaging.OrderBGR)
	if _, err := e.Quantize(tiny, imaging.KMeansOptions{K: 8}); !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("tiny err = %v, want ErrProcessing", err)
	}
}

func TestBilateralKeepsShape(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := imaging.NewBuffer(12, 10, imaging.OrderBGR)
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	out, err := e.Bilateral(src, imaging.DefaultBilateralParams)
	if err != nil {
		t.Fatalf("Bilateral: %v", err)
	}
	if out.Width != 12 || out.Height != 10 || out.Channels != 3 {
		t.Fatalf("shape = %dx%dx%d", out.Height, out.Width, out.Channels)
	}
}
