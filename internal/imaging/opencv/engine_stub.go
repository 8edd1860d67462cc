//go:build !opencv

package opencv

import "toonlab/internal/imaging"

// Engine is a placeholder in builds without OpenCV.
type Engine struct{}

// New always fails without the opencv build tag.
func New() (*Engine, error) {
	return nil, errNotBuilt
}

func (*Engine) EdgeMask(imaging.Buffer, imaging.EdgeParams) (imaging.Buffer, error) {
	return imaging.Buffer{}, errNotBuilt
}

func (*Engine) Quantize(imaging.Buffer, imaging.KMeansOptions) (imaging.Buffer, error) {
	return imaging.Buffer{}, errNotBuilt
}

func (*Engine) Bilateral(imaging.Buffer, imaging.BilateralParams) (imaging.Buffer, error) {
	return imaging.Buffer{}, errNotBuilt
}
