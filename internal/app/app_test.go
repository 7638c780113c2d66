package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/queue"
)

func testConfig(t *testing.T) config.App {
	dir := t.TempDir()
	return config.App{
		FacesDir:     filepath.Join(dir, "faces"),
		LedgerPath:   filepath.Join(dir, "attendance.csv"),
		Timezone:     "UTC",
		Tolerance:    0.6,
		Encoder:      "skip",
		QueueBackend: "memory",
	}
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewSkipMode(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.IsType(t, &queue.InMemory{}, a.Queue)
	assert.NoError(t, a.EncoderHealth(context.Background()))

	ctx := context.Background()
	photo := pngBytes(t)
	require.NoError(t, a.Service.RegisterFace(ctx, "bob", photo))

	res, err := a.Service.TakeAttendance(ctx, photo)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, attendance.StatusMarked, res[0].Status)
	assert.Equal(t, "bob", res[0].Name)

	recs, err := a.Ledger.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, time.Now().UTC().Format(attendance.DateLayout), recs[0].Date)
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.App)
		want   string
	}{
		{"unknown encoder", func(c *config.App) { c.Encoder = "magic" }, "unknown FACE_ENCODER"},
		{"unknown queue", func(c *config.App) { c.QueueBackend = "kafka" }, "unknown QUEUE_BACKEND"},
		{"redis queue without redis", func(c *config.App) { c.QueueBackend = "redis" }, "requires REDIS_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
