// Package metrics declares the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts identified faces by outcome (marked, already_marked, unknown, no_face).
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Faces processed by attendance captures, by outcome.",
	}, []string{"status"})

	// Enrollments counts registration attempts by result.
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_enrollments_total",
		Help: "Face registration attempts, by result.",
	}, []string{"result"})

	GalleryIdentities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_identities",
		Help: "Identities usable for matching at the last gallery load.",
	})

	GallerySkipped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_skipped_entries",
		Help: "Gallery images skipped at the last gallery load.",
	})

	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "face_encode_duration_seconds",
		Help:    "Time spent encoding attendance captures.",
		Buckets: prometheus.DefBuckets,
	})
)
