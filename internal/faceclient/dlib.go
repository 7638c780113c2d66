//go:build dlib

package faceclient

import (
	"context"
	"fmt"
	"sync"

	goface "github.com/Kagami/go-face"

	"faceattend/internal/face"
)

// DlibAvailable reports whether this binary was built with the dlib encoder.
const DlibAvailable = true

// Dlib encodes faces in-process with dlib's ResNet model.
// The recognizer is not safe for concurrent use, so calls are serialized.
type Dlib struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

// NewDlib loads the dlib models from modelsDir.
func NewDlib(modelsDir string) (*Dlib, error) {
	rec, err := goface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelsDir, err)
	}
	return &Dlib{rec: rec}, nil
}

// Encode implements face.Encoder. dlib reads JPEG only, so PNG and WebP
// input is converted first.
func (d *Dlib) Encode(ctx context.Context, image []byte) ([]face.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := toJPEG(image)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	faces, err := d.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	out := make([]face.Vector, 0, len(faces))
	for _, f := range faces {
		desc := [128]float32(f.Descriptor)
		out = append(out, face.FromFloat32(desc[:]))
	}
	return out, nil
}

// Close releases the dlib recognizer.
func (d *Dlib) Close() error {
	d.rec.Close()
	return nil
}
