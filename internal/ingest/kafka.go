package ingest

import (
	"context"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"flowmon/internal/config"
)

// StartKafka runs the consume loop in its own goroutine until ctx is
// cancelled. Malformed messages and transient store failures are
// logged and skipped so one bad record never stalls the partition.
func StartKafka(ctx context.Context, cfg config.IngestConfig, consumer *Consumer, log *logrus.Logger) {
	if !cfg.Enabled {
		log.Info("kafka ingest disabled")
		return
	}
	log.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
		"group":   cfg.GroupID,
	}).Info("kafka ingest enabled")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})

	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("kafka read error")
				continue
			}
			rec, err := Decode(m.Value)
			if err != nil {
				log.WithError(err).Warn("drop malformed flow record")
				continue
			}
			if err := consumer.Handle(ctx, rec); err != nil {
				log.WithError(err).Error("store flow record")
			}
		}
	}()
}
