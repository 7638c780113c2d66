// Package face holds the feature-vector types shared by the gallery, the
// encoders and the matcher, together with the nearest-identity matcher itself.
package face

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNoFaceDetected is returned when an image expected to hold a face holds none.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrEncoder wraps failures of the Encoder itself, as opposed to images without faces.
	ErrEncoder = errors.New("face encoder failed")
	// ErrImageRejected is returned by an Encoder that cannot process one particular
	// image (corrupt data, unsupported content). Other images may still encode.
	ErrImageRejected = errors.New("image rejected by encoder")
)

// Vector is a fixed-length face embedding produced by an Encoder.
type Vector []float64

// FromFloat32 converts an embedding as returned by most encoders.
func FromFloat32(v []float32) Vector {
	out := make(Vector, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// Identity pairs an enrolled name with the vector of its reference image.
type Identity struct {
	Name   string
	Vector Vector
}

// Encoder turns an image into one vector per detected face.
// An image without faces yields an empty slice and a nil error.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([]Vector, error)
}

// Distance is the Euclidean distance between a and b.
// Vectors of different (or zero) length are infinitely far apart.
func Distance(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}
