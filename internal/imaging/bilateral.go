package imaging

import (
	"fmt"
	"math"

	"toonlab/internal/domain"
)

// BilateralParams configures the edge-preserving smoother.
type BilateralParams struct {
	Diameter   int
	SigmaColor float64
	SigmaSpace float64
}

// DefaultBilateralParams flattens texture aggressively while keeping strong edges.
var DefaultBilateralParams = BilateralParams{Diameter: 9, SigmaColor: 300, SigmaSpace: 300}

// Bilateral smooths src by weighting each neighbour within a circular window
// by spatial distance and by colour distance (sum of absolute channel
// differences). Borders are reflected without repeating the edge sample.
func Bilateral(src Buffer, p BilateralParams) (Buffer, error) {
	if err := src.Validate(); err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	if p.SigmaColor <= 0 {
		p.SigmaColor = 1
	}
	if p.SigmaSpace <= 0 {
		p.SigmaSpace = 1
	}
	radius := p.Diameter / 2
	if p.Diameter <= 0 {
		radius = int(math.Round(p.SigmaSpace * 1.5))
	}
	radius = max(radius, 1)

	type tap struct {
		dx, dy int
		w      float64
	}
	spaceCoeff := -0.5 / (p.SigmaSpace * p.SigmaSpace)
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r := math.Sqrt(float64(dx*dx + dy*dy))
			if r > float64(radius) {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, w: math.Exp(r * r * spaceCoeff)})
		}
	}

	ch := src.Channels
	colorCoeff := -0.5 / (p.SigmaColor * p.SigmaColor)
	colorWeight := make([]float64, 256*ch)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	w, h := src.Width, src.Height
	out := NewBuffer(w, h, src.Order)
	var acc [3]float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := src.Pix[(y*w+x)*ch : (y*w+x)*ch+ch]
			acc = [3]float64{}
			wsum := 0.0
			for _, t := range taps {
				nx := reflect101(x+t.dx, w)
				ny := reflect101(y+t.dy, h)
				nb := src.Pix[(ny*w+nx)*ch : (ny*w+nx)*ch+ch]
				dist := 0
				for c := 0; c < ch; c++ {
					dist += absInt(int(nb[c]) - int(center[c]))
				}
				wt := t.w * colorWeight[dist]
				for c := 0; c < ch; c++ {
					acc[c] += wt * float64(nb[c])
				}
				wsum += wt
			}
			dst := out.Pix[(y*w+x)*ch : (y*w+x)*ch+ch]
			for c := 0; c < ch; c++ {
				dst[c] = uint8(clampInt(int(math.Round(acc[c]/wsum)), 0, 255))
			}
		}
	}
	return out, nil
}

// reflect101 mirrors i into [0,n) as gfedcb|abcdefgh|gfedcba.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
