package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"faceattend/internal/face"
	"faceattend/internal/gallery"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
)

// ErrEmptyImage is returned when a capture or registration carries no image data.
var ErrEmptyImage = errors.New("image required")

// Status is the per-face result of an attendance capture.
type Status string

const (
	StatusMarked        Status = "marked"
	StatusAlreadyMarked Status = "already_marked"
	StatusUnknown       Status = "unknown"
	StatusNoFace        Status = "no_face"
)

// CheckIn reports what happened to one face of a capture.
type CheckIn struct {
	Status  Status  `json:"status"`
	Name    string  `json:"name,omitempty"`
	Record  *Record `json:"record,omitempty"`
	Message string  `json:"message"`
}

// Gallery is the enrolled-face store used by the service.
type Gallery interface {
	Enroll(ctx context.Context, name string, image []byte) error
	LoadAll(ctx context.Context) (gallery.LoadResult, error)
}

// Publisher receives attendance events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Service runs capture → encode → match → ledger for each attendance attempt.
type Service struct {
	gallery Gallery
	encoder face.Encoder
	matcher face.Matcher
	ledger  *Ledger
	pub     Publisher
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher publishes an EventMarked message after every new record.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.pub = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the gallery, encoder, matcher and ledger together.
func NewService(g Gallery, enc face.Encoder, matcher face.Matcher, ledger *Ledger, opts ...ServiceOption) *Service {
	s := &Service{
		gallery: g,
		encoder: enc,
		matcher: matcher,
		ledger:  ledger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TakeAttendance identifies every face in image and marks the recognised ones.
// The result holds one entry per detected face, or a single StatusNoFace entry.
func (s *Service) TakeAttendance(ctx context.Context, image []byte) ([]CheckIn, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	now := s.now()

	start := time.Now()
	observed, err := s.encoder.Encode(ctx, image)
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: capture: %w", face.ErrEncoder, err)
	}
	if len(observed) == 0 {
		metrics.CheckIns.WithLabelValues(string(StatusNoFace)).Inc()
		return []CheckIn{{Status: StatusNoFace, Message: "No face found. Please position your face in the frame."}}, nil
	}

	known, err := s.gallery.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	metrics.GalleryIdentities.Set(float64(len(known.Identities)))
	metrics.GallerySkipped.Set(float64(len(known.Skipped)))

	outcomes := s.matcher.IdentifyAll(observed, known.Identities)
	results := make([]CheckIn, 0, len(outcomes))
	for _, out := range outcomes {
		res, err := s.checkIn(ctx, out, now)
		if err != nil {
			return results, err
		}
		metrics.CheckIns.WithLabelValues(string(res.Status)).Inc()
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) checkIn(ctx context.Context, out face.Outcome, now time.Time) (CheckIn, error) {
	switch out.Kind {
	case face.Matched:
	case face.NoFaceDetected:
		return CheckIn{Status: StatusNoFace, Message: "No face found. Please position your face in the frame."}, nil
	default:
		return CheckIn{Status: StatusUnknown, Message: "Face not recognized. Please register first."}, nil
	}

	result, rec, err := s.ledger.Mark(ctx, out.Name, now)
	if err != nil {
		return CheckIn{}, fmt.Errorf("mark %s: %w", out.Name, err)
	}
	if result == AlreadyMarked {
		return CheckIn{
			Status:  StatusAlreadyMarked,
			Name:    out.Name,
			Record:  &rec,
			Message: fmt.Sprintf("%s, your attendance is already recorded for today.", out.Name),
		}, nil
	}

	log.Printf("attendance marked for %s at %s %s (distance %.3f)", rec.Name, rec.Date, rec.Time, out.Distance)
	s.publish(ctx, rec, out.Distance)
	return CheckIn{
		Status:  StatusMarked,
		Name:    out.Name,
		Record:  &rec,
		Message: fmt.Sprintf("Attendance marked for: %s", out.Name),
	}, nil
}

func (s *Service) publish(ctx context.Context, rec Record, distance float64) {
	if s.pub == nil {
		return
	}
	msg, err := NewMarkedMessage(rec, distance)
	if err != nil {
		log.Printf("build %s event failed: %v", EventMarked, err)
		return
	}
	if err := s.pub.Publish(ctx, msg); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// RegisterFace enrolls image as the reference photo for name.
func (s *Service) RegisterFace(ctx context.Context, name string, image []byte) error {
	if len(image) == 0 {
		metrics.Enrollments.WithLabelValues("invalid").Inc()
		return ErrEmptyImage
	}
	err := s.gallery.Enroll(ctx, name, image)
	metrics.Enrollments.WithLabelValues(enrollResult(err)).Inc()
	if err != nil {
		return err
	}
	log.Printf("profile created for %s", strings.TrimSpace(name))
	return nil
}

func enrollResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, face.ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, gallery.ErrEmptyName), errors.Is(err, gallery.ErrInvalidName),
		errors.Is(err, gallery.ErrUnsupportedImage), errors.Is(err, face.ErrImageRejected):
		return "invalid"
	default:
		return "error"
	}
}

// Records returns the full ledger in insertion order.
func (s *Service) Records(ctx context.Context) ([]Record, error) {
	return s.ledger.Records(ctx)
}

// Export writes the ledger as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	return s.ledger.Export(ctx, w)
}
