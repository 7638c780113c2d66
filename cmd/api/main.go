package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/app"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.EncoderHealth(context.Background()); err != nil {
		log.Printf("warning: %v", err)
	}
	if cfg.Production() && cfg.UsesDefaultSigningKey() {
		log.Println("warning: JWT_SIGNING_KEY is unset, device tokens are signed with the built-in development key")
	}
	if cfg.RegistrationKey == "" {
		log.Println("device registration disabled (DEVICE_REGISTRATION_KEY not set)")
	}

	if cfg.QueueBackend != "redis" {
		// no separate worker can see an in-process queue
		go func() {
			if _, err := app.ConsumeEvents(context.Background(), a.Queue); err != nil {
				log.Printf("event consumer: %v", err)
			}
		}()
	}

	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Registration-Key"},
		ExposeHeaders:   []string{"Content-Disposition"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.MaxMultipartMemory = handler.MaxImageBytes

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		faceErr := a.EncoderHealth(ctx)
		status := http.StatusOK
		if faceErr != nil {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{"status": "ok", "face_service": faceErr == nil}
		if a.Redis != nil {
			redisHealthy := a.Redis.Healthy(ctx)
			if !redisHealthy {
				status = http.StatusServiceUnavailable
			}
			body["redis"] = redisHealthy
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	handler.New(a.Service, a.Gallery, issuer, cfg.RegistrationKey).Register(r, limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (faces=%s ledger=%s)", cfg.HTTPPort, cfg.FacesDir, cfg.LedgerPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}
