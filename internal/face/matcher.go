package face

import "math"

// DefaultTolerance is the conventional dlib/face_recognition match distance.
const DefaultTolerance = 0.6

// OutcomeKind classifies the result of identifying one observed face.
type OutcomeKind int

const (
	Unknown OutcomeKind = iota
	Matched
	NoFaceDetected
)

func (k OutcomeKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case NoFaceDetected:
		return "no_face"
	default:
		return "unknown"
	}
}

// Outcome is the decision for a single observed face.
// Distance is the best distance found, +Inf when the gallery was empty.
type Outcome struct {
	Kind     OutcomeKind
	Name     string
	Distance float64
}

// Matcher picks the nearest enrolled identity within Tolerance.
type Matcher struct {
	Tolerance float64
}

// NewMatcher returns a matcher, falling back to DefaultTolerance for non-positive values.
func NewMatcher(tolerance float64) Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return Matcher{Tolerance: tolerance}
}

// Identify compares observed against every gallery entry and returns Matched
// only when the closest entry lies within tolerance. Equal distances resolve
// to the earliest entry in gallery order.
func (m Matcher) Identify(observed Vector, gallery []Identity) Outcome {
	best := -1
	bestDist := math.Inf(1)
	for i, id := range gallery {
		d := Distance(observed, id.Vector)
		// strict less-than keeps the first of equal minima
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist > m.tolerance() {
		return Outcome{Kind: Unknown, Distance: bestDist}
	}
	return Outcome{Kind: Matched, Name: gallery[best].Name, Distance: bestDist}
}

// IdentifyAll produces one outcome per observed face, or a single
// NoFaceDetected outcome when nothing was observed.
func (m Matcher) IdentifyAll(observed []Vector, gallery []Identity) []Outcome {
	if len(observed) == 0 {
		return []Outcome{{Kind: NoFaceDetected, Distance: math.Inf(1)}}
	}
	out := make([]Outcome, 0, len(observed))
	for _, v := range observed {
		out = append(out, m.Identify(v, gallery))
	}
	return out
}

func (m Matcher) tolerance() float64 {
	if m.Tolerance <= 0 {
		return DefaultTolerance
	}
	return m.Tolerance
}
