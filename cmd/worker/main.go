// The worker consumes raw-bucket object-created notifications from Kafka and
// produces thumbnails plus metadata records.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/photoshare/service/internal/config"
	"github.com/photoshare/service/internal/db"
	"github.com/photoshare/service/internal/picture"
	"github.com/photoshare/service/internal/storage"
	"github.com/photoshare/service/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.NewMinioStore(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.RawBucket,
		cfg.ThumbBucket,
		cfg.ThumbPublicBase,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		GroupID: cfg.KafkaGroupID,
	})
	defer reader.Close()

	proc := worker.NewProcessor(picture.NewRepository(pool), store, cfg.MaxAttempts)
	consumer := worker.NewConsumer(reader, proc, cfg.ProcessTimeout)

	log.Printf("worker consuming %q from %v (group=%s)", cfg.KafkaTopic, cfg.KafkaBrokers, cfg.KafkaGroupID)
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("consumer stopped: %v", err)
	}
	log.Println("worker stopped")
}
