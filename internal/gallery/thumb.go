package gallery

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
)

// DefaultThumbSize bounds the longer edge of thumbnails served for the gallery listing.
const DefaultThumbSize = 160

// Thumbnail renders the reference image of name as a JPEG that fits in size x size.
func (s *Store) Thumbnail(name string, size uint) ([]byte, error) {
	if size == 0 {
		size = DefaultThumbSize
	}
	data, err := s.Image(name)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, ErrUnsupportedImage)
	}
	thumb := resize.Thumbnail(size, size, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
