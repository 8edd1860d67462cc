package imaging

import (
	"fmt"

	"toonlab/internal/domain"
)

// MaskAnd keeps img where mask is non-zero and zeroes it elsewhere.
func MaskAnd(img, mask Buffer) (Buffer, error) {
	if err := img.Validate(); err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", domain.ErrProcessing, err)
	}
	if mask.Channels != 1 || !img.SameSize(mask) {
		return Buffer{}, fmt.Errorf("%w: mask %dx%dx%d does not fit image %dx%d",
			domain.ErrProcessing, mask.Height, mask.Width, mask.Channels, img.Height, img.Width)
	}
	out := NewBuffer(img.Width, img.Height, img.Order)
	ch := img.Channels
	for i, m := range mask.Pix {
		if m == 0 {
			continue
		}
		copy(out.Pix[i*ch:i*ch+ch], img.Pix[i*ch:i*ch+ch])
	}
	return out, nil
}
