// Package gallery persists one reference image per enrolled identity in a
// directory, keyed by file stem, and derives face vectors from those images.
package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio"
	_ "golang.org/x/image/webp"

	"faceattend/internal/face"
)

var (
	ErrEmptyName        = errors.New("name required")
	ErrInvalidName      = errors.New("name must not contain path separators")
	ErrUnsupportedImage = errors.New("unsupported image format (want jpeg, png or webp)")
	ErrDuplicateName    = errors.New("another image already uses this name")
	ErrNotFound         = errors.New("identity not enrolled")
	ErrStorage          = errors.New("gallery storage error")
)

// formats maps image.DecodeConfig format names to the extension we store under.
var formats = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"webp": ".webp",
}

// extensions lists every extension recognised as a gallery image.
var extensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Mirror receives a copy of every enrolled reference image.
type Mirror interface {
	Mirror(ctx context.Context, name string, image []byte) error
}

// Skipped describes a gallery file that could not contribute an identity.
type Skipped struct {
	Name string
	File string
	Err  error
}

// LoadResult holds the usable identities in gallery order and the entries that were skipped.
type LoadResult struct {
	Identities []face.Identity
	Skipped    []Skipped
}

// Store is a directory-backed face gallery.
type Store struct {
	dir    string
	enc    face.Encoder
	mirror Mirror
	mu     sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithMirror copies enrolled images to m after they are stored locally.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// New opens the gallery rooted at dir, creating the directory when missing.
func New(dir string, enc face.Encoder, opts ...Option) (*Store, error) {
	if enc == nil {
		return nil, errors.New("gallery: encoder required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
	}
	s := &Store{dir: dir, enc: enc}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the gallery directory.
func (s *Store) Dir() string { return s.dir }

// Enroll validates image, checks that it holds a face and stores it as the
// reference for name, replacing any earlier image of that name.
// When several faces are found the first one is used.
func (s *Store) Enroll(ctx context.Context, name string, img []byte) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	ext, err := detectExt(img)
	if err != nil {
		return err
	}

	vecs, err := s.enc.Encode(ctx, img)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", face.ErrEncoder, name, err)
	}
	if len(vecs) == 0 {
		return fmt.Errorf("enroll %s: %w", name, face.ErrNoFaceDetected)
	}
	if len(vecs) > 1 {
		log.Printf("enroll %s: %d faces detected, using the first", name, len(vecs))
	}

	s.mu.Lock()
	path := filepath.Join(s.dir, name+ext)
	if err := renameio.WriteFile(path, img, 0o644); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}
	s.removeStale(name, path)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, name, img); err != nil {
			log.Printf("enroll %s: mirror failed: %v", name, err)
		}
	}
	return nil
}

// removeStale deletes every other gallery file stored under name, whatever
// the case of its extension. Callers hold the write lock.
func (s *Store) removeStale(name, keep string) {
	files, err := s.list()
	if err != nil {
		log.Printf("enroll %s: %v", name, err)
		return
	}
	kept, err := os.Stat(keep)
	if err != nil {
		log.Printf("enroll %s: stat %s: %v", name, keep, err)
		return
	}
	for _, f := range files {
		if f.name != name {
			continue
		}
		stale := filepath.Join(s.dir, f.file)
		// a case-insensitive filesystem may list the new file under the old spelling
		if fi, err := os.Stat(stale); err == nil && os.SameFile(fi, kept) {
			continue
		}
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("enroll %s: remove stale %s: %v", name, stale, err)
		}
	}
}

// LoadAll recomputes the vector of every stored image. Entries that cannot be
// read or decoded, that the encoder rejects, or that hold no face are skipped
// and reported instead of failing the load. Other encoder failures abort it.
func (s *Store) LoadAll(ctx context.Context) (LoadResult, error) {
	var res LoadResult

	files, err := s.snapshot()
	if err != nil {
		return res, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if f.err != nil {
			res.Skipped = append(res.Skipped, Skipped{Name: f.name, File: f.file, Err: f.err})
			continue
		}
		vecs, err := s.enc.Encode(ctx, f.data)
		if errors.Is(err, face.ErrImageRejected) {
			res.Skipped = append(res.Skipped, Skipped{Name: f.name, File: f.file, Err: err})
			continue
		}
		if err != nil {
			return res, fmt.Errorf("%w: %s: %w", face.ErrEncoder, f.file, err)
		}
		if len(vecs) == 0 {
			res.Skipped = append(res.Skipped, Skipped{Name: f.name, File: f.file, Err: face.ErrNoFaceDetected})
			continue
		}
		res.Identities = append(res.Identities, face.Identity{Name: f.name, Vector: vecs[0]})
	}

	for _, sk := range res.Skipped {
		log.Printf("gallery: skipping %s: %v", sk.File, sk.Err)
	}
	return res, nil
}

// Names lists enrolled names in gallery order.
func (s *Store) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, err := s.list()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		if seen[f.name] {
			continue
		}
		seen[f.name] = true
		names = append(names, f.name)
	}
	return names, nil
}

// Image returns the stored reference image for name.
func (s *Store) Image(name string) ([]byte, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, err := s.list()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.name != name {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.file))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, f.file, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// NormalizeName trims name and checks that it can serve as a file stem.
// Names starting with "." are refused since hidden files are not listed.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return name, nil
}

type galleryFile struct {
	name string
	file string
	data []byte
	err  error
}

type listedFile struct {
	name string
	file string
}

// list returns gallery image files sorted by file name.
func (s *Store) list() ([]listedFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrStorage, s.dir, err)
	}
	var out []listedFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !isImageExt(ext) {
			continue
		}
		out = append(out, listedFile{
			name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			file: e.Name(),
		})
	}
	return out, nil
}

// snapshot reads every gallery file under the read lock so encoding can run without it.
func (s *Store) snapshot() ([]galleryFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listed, err := s.list()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(listed))
	out := make([]galleryFile, 0, len(listed))
	for _, l := range listed {
		f := galleryFile{name: l.name, file: l.file}
		switch {
		case seen[l.name]:
			f.err = ErrDuplicateName
		default:
			seen[l.name] = true
			data, err := os.ReadFile(filepath.Join(s.dir, l.file))
			if err != nil {
				f.err = fmt.Errorf("%w: %w", ErrStorage, err)
			} else if _, err := detectExt(data); err != nil {
				f.err = err
			} else {
				f.data = data
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func isImageExt(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// detectExt sniffs the image format and returns the extension to store it under.
func detectExt(img []byte) (string, error) {
	if len(img) == 0 {
		return "", ErrUnsupportedImage
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", ErrUnsupportedImage
	}
	ext, ok := formats[format]
	if !ok {
		return "", ErrUnsupportedImage
	}
	return ext, nil
}
