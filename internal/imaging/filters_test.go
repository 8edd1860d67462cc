package imaging

import (
	"errors"
	"testing"

	"toonlab/internal/domain"
)

func grayFromFunc(w, h int, fn func(x, y int) uint8) Buffer {
	b := NewBuffer(w, h, OrderGray)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b.Pix[y*w+x] = fn(x, y)
		}
	}
	return b
}

func TestGrayscaleLuma(t *testing.T) {
	src := NewBuffer(2, 1, OrderRGB)
	copy(src.Pix, []uint8{255, 255, 255, 255, 0, 0})
	gray, err := Grayscale(src)
	if err != nil {
		t.Fatalf("Grayscale: %v", err)
	}
	if gray.Channels != 1 || gray.Width != 2 || gray.Height != 1 {
		t.Fatalf("shape = %dx%dx%d", gray.Height, gray.Width, gray.Channels)
	}
	if gray.Pix[0] < 254 {
		t.Fatalf("white luma = %d", gray.Pix[0])
	}
	// pure red is about 0.299 * 255
	if v := int(gray.Pix[1]); v < 74 || v > 78 {
		t.Fatalf("red luma = %d, want ~76", v)
	}
}

func TestGrayscaleIgnoresChannelOrder(t *testing.T) {
	rgb := NewBuffer(1, 1, OrderRGB)
	copy(rgb.Pix, []uint8{10, 120, 240})
	bgr := rgb.Reorder(OrderBGR)
	a, err := Grayscale(rgb)
	if err != nil {
		t.Fatalf("Grayscale rgb: %v", err)
	}
	b, err := Grayscale(bgr)
	if err != nil {
		t.Fatalf("Grayscale bgr: %v", err)
	}
	if a.Pix[0] != b.Pix[0] {
		t.Fatalf("luma differs: %d vs %d", a.Pix[0], b.Pix[0])
	}
}

func TestMedianBlurRemovesSpeckle(t *testing.T) {
	src := grayFromFunc(9, 9, func(x, y int) uint8 {
		if x == 4 && y == 4 {
			return 255
		}
		return 20
	})
	out, err := MedianBlur(src, 5)
	if err != nil {
		t.Fatalf("MedianBlur: %v", err)
	}
	if out.Pix[4*9+4] != 20 {
		t.Fatalf("speckle survived: %d", out.Pix[4*9+4])
	}
	if _, err := MedianBlur(src, 4); !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("even kernel err = %v", err)
	}
}

func TestAdaptiveThresholdMeanIsBinary(t *testing.T) {
	// dark vertical line on a bright field
	src := grayFromFunc(16, 12, func(x, y int) uint8 {
		if x == 8 {
			return 30
		}
		return 200
	})
	out, err := AdaptiveThresholdMean(src, 9, 5)
	if err != nil {
		t.Fatalf("AdaptiveThresholdMean: %v", err)
	}
	if out.Width != 16 || out.Height != 12 || out.Channels != 1 {
		t.Fatalf("shape = %dx%dx%d", out.Height, out.Width, out.Channels)
	}
	for i, v := range out.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("pix[%d] = %d, want 0 or 255", i, v)
		}
	}
	if out.Pix[5*16+8] != 0 {
		t.Fatalf("dark line not marked as edge")
	}
	if out.Pix[5*16+2] != 255 {
		t.Fatalf("flat region marked as edge")
	}
}

func TestAdaptiveThresholdFlatImageIsWhite(t *testing.T) {
	src := grayFromFunc(5, 5, func(x, y int) uint8 { return 90 })
	out, err := AdaptiveThresholdMean(src, 9, 9)
	if err != nil {
		t.Fatalf("AdaptiveThresholdMean: %v", err)
	}
	for i, v := range out.Pix {
		if v != 255 {
			t.Fatalf("pix[%d] = %d, want 255", i, v)
		}
	}
}

func TestAdaptiveThresholdRejectsColour(t *testing.T) {
	if _, err := AdaptiveThresholdMean(NewBuffer(3, 3, OrderRGB), 9, 5); !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("err = %v, want ErrProcessing", err)
	}
}

func TestBilateralKeepsUniformImage(t *testing.T) {
	src := NewBuffer(12, 7, OrderBGR)
	for i := 0; i < len(src.Pix); i += 3 {
		copy(src.Pix[i:i+3], []uint8{40, 80, 160})
	}
	out, err := Bilateral(src, DefaultBilateralParams)
	if err != nil {
		t.Fatalf("Bilateral: %v", err)
	}
	if out.Order != OrderBGR || !out.SameSize(src) {
		t.Fatalf("shape/order changed: %+v", out)
	}
	for i := range out.Pix {
		if out.Pix[i] != src.Pix[i] {
			t.Fatalf("pix[%d] = %d, want %d", i, out.Pix[i], src.Pix[i])
		}
	}
}

func TestBilateralSmoothsNoise(t *testing.T) {
	src := grayFromFunc(10, 10, func(x, y int) uint8 {
		if (x+y)%2 == 0 {
			return 100
		}
		return 120
	})
	out, err := Bilateral(src, DefaultBilateralParams)
	if err != nil {
		t.Fatalf("Bilateral: %v", err)
	}
	for i, v := range out.Pix {
		if v < 105 || v > 115 {
			t.Fatalf("pix[%d] = %d, want close to 110", i, v)
		}
	}
}

func TestBilateralSinglePixel(t *testing.T) {
	src := NewBuffer(1, 1, OrderRGB)
	copy(src.Pix, []uint8{1, 2, 3})
	out, err := Bilateral(src, DefaultBilateralParams)
	if err != nil {
		t.Fatalf("Bilateral: %v", err)
	}
	if out.Pix[0] != 1 || out.Pix[1] != 2 || out.Pix[2] != 3 {
		t.Fatalf("pix = %v", out.Pix)
	}
}

func TestMaskAnd(t *testing.T) {
	img := NewBuffer(2, 1, OrderRGB)
	copy(img.Pix, []uint8{10, 20, 30, 40, 50, 60})
	mask := NewBuffer(2, 1, OrderGray)
	mask.Pix[1] = 255
	out, err := MaskAnd(img, mask)
	if err != nil {
		t.Fatalf("MaskAnd: %v", err)
	}
	want := []uint8{0, 0, 0, 40, 50, 60}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Fatalf("pix = %v, want %v", out.Pix, want)
		}
	}
	if _, err := MaskAnd(img, NewBuffer(3, 1, OrderGray)); !errors.Is(err, domain.ErrProcessing) {
		t.Fatalf("size mismatch err = %v", err)
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1}, {-2, 5, 2}, {5, 5, 3}, {6, 5, 2}, {0, 1, 0}, {-3, 2, 1},
	}
	for _, tc := range tests {
		if got := reflect101(tc.i, tc.n); got != tc.want {
			t.Fatalf("reflect101(%d, %d) = %d, want %d", tc.i, tc.n, got, tc.want)
		}
	}
}
