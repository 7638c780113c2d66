package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/app"
	"faceattend/internal/config"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes attendance events published by the API and logs them.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	if redisClient == nil {
		log.Fatal("worker needs REDIS_ADDR")
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("warning: redis at %s not reachable yet, consumer will retry", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	log.Println("worker started, waiting for messages...")
	processed, err := app.ConsumeEvents(ctx, q)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("worker stopped after %d events", processed)
}
