//go:build !dlib

package faceclient

import (
	"context"
	"errors"

	"faceattend/internal/face"
)

// DlibAvailable reports whether this binary was built with the dlib encoder.
const DlibAvailable = false

var errNoDlib = errors.New("dlib encoder not compiled in (build with -tags dlib)")

// Dlib is unavailable without the dlib build tag.
type Dlib struct{}

// NewDlib always fails without the dlib build tag.
func NewDlib(modelsDir string) (*Dlib, error) {
	return nil, errNoDlib
}

// Encode implements face.Encoder.
func (d *Dlib) Encode(ctx context.Context, image []byte) ([]face.Vector, error) {
	return nil, errNoDlib
}

// Close is a no-op.
func (d *Dlib) Close() error { return nil }
