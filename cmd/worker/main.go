// Worker consumes portal telemetry events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"genieacs-portal/internal/config"
	applogger "genieacs-portal/internal/logger"
	"genieacs-portal/internal/telemetry/loki"
)

const pushTimeout = 10 * time.Second

func main() {
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := applogger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, pushTimeout)
	if err != nil {
		logger.Fatal("worker: loki client", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker: consuming",
		zap.String("topic", cfg.TelemetryKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worker: stopped")
				return
			}
			logger.Warn("worker: kafka read error", zap.Error(err))
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := client.PushEventJSON(pushCtx, msg.Value); err != nil {
			logger.Warn("worker: loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		cancel()
	}
}
