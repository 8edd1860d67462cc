// Package opencv runs the cartoon pixel primitives through OpenCV via gocv.
// The binding needs cgo and an installed OpenCV, so the real engine is only
// compiled with the opencv build tag; other builds get an engine that
// reports domain.ErrUnavailable.
package opencv

import (
	"fmt"

	"toonlab/internal/domain"
)

var errNotBuilt = fmt.Errorf("%w: built without the opencv tag", domain.ErrUnavailable)
