package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"faceattend/internal/attendance"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/face"
	"faceattend/internal/faceclient"
	"faceattend/internal/gallery"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// LedgerLockKey is the redis key guarding the shared ledger file.
const LedgerLockKey = "attendance:ledger:lock"

// App bundles the components every binary needs.
type App struct {
	Config  config.App
	Encoder face.Encoder
	Gallery *gallery.Store
	Ledger  *attendance.Ledger
	Queue   queue.Queue
	Redis   *store.Redis
	Service *attendance.Service

	closers []func() error
}

// New builds the gallery, ledger, queue and service described by cfg.
func New(cfg config.App) (*App, error) {
	a := &App{Config: cfg}

	a.Redis = store.NewRedis(cfg.RedisAddr)
	if a.Redis != nil {
		a.closers = append(a.closers, a.Redis.Close)
	}

	enc, err := a.newEncoder()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Encoder = enc

	var galleryOpts []gallery.Option
	if cfg.CloudinaryEnabled() {
		galleryOpts = append(galleryOpts, gallery.WithMirror(
			cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)))
		log.Printf("cloudinary mirror configured: %s", cfg.CloudinaryCloudName)
	}
	a.Gallery, err = gallery.New(cfg.FacesDir, enc, galleryOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open gallery: %w", err)
	}

	ledgerOpts := []attendance.LedgerOption{attendance.WithLocation(cfg.Location())}
	if a.Redis != nil {
		ledgerOpts = append(ledgerOpts, attendance.WithLocker(
			store.NewRedisLock(a.Redis.Client, LedgerLockKey, cfg.LockTTL, 0)))
	}
	a.Ledger, err = attendance.OpenLedger(cfg.LedgerPath, ledgerOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	a.Queue, err = a.newQueue()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Service = attendance.NewService(a.Gallery, enc, face.NewMatcher(cfg.Tolerance), a.Ledger,
		attendance.WithPublisher(a.Queue))
	return a, nil
}

func (a *App) newEncoder() (face.Encoder, error) {
	cfg := a.Config
	mode := strings.ToLower(cfg.Encoder)
	if cfg.FaceSkip {
		mode = "skip"
	}
	switch mode {
	case "skip":
		log.Printf("face encoder: skip mode, vectors are derived from image bytes")
		return faceclient.New(cfg.FaceServiceURL, true), nil
	case "http", "":
		return faceclient.New(cfg.FaceServiceURL, false), nil
	case "dlib":
		d, err := faceclient.NewDlib(cfg.DlibModelsDir)
		if err != nil {
			return nil, fmt.Errorf("dlib encoder: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown FACE_ENCODER %q (want http, skip or dlib)", cfg.Encoder)
	}
}

func (a *App) newQueue() (queue.Queue, error) {
	switch a.Config.QueueBackend {
	case "memory", "":
		return queue.NewInMemory(64), nil
	case "redis":
		if a.Redis == nil {
			return nil, fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_ADDR")
		}
		return queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey), nil
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", a.Config.QueueBackend)
	}
}

// EncoderHealth checks the remote face service when the http encoder is active.
func (a *App) EncoderHealth(ctx context.Context) error {
	if c, ok := a.Encoder.(*faceclient.Client); ok {
		return c.Health(ctx)
	}
	return nil
}

// Close releases the redis client and the dlib recognizer.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
