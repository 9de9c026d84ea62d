package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"drainwatch/internal/config"
	"drainwatch/internal/logger"
	"drainwatch/internal/models"
)

// Producer publishes telemetry readings onto the topic. Used by the sensor
// simulator; the ingestion path itself only consumes.
type Producer struct {
	writer       *kafka.Writer
	maxRetries   int
	retryBackoff time.Duration
}

func NewProducer(cfg config.BrokerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // partition by device id
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
	}, nil
}

// Publish sends one reading, keyed by device id so a device's stream stays
// on one partition.
func (p *Producer) Publish(ctx context.Context, input *models.ReadingInput) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("serialize reading: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(input.DeviceID),
		Value: data,
		Time:  time.Now(),
	}

	log := logger.WithComponent("producer")
	var lastErr error
	backoff := p.retryBackoff

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying telemetry publish")
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := p.writer.WriteMessages(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
