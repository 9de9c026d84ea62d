package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"drainwatch/internal/config"
	"drainwatch/internal/logger"
	"drainwatch/internal/metrics"
	"drainwatch/internal/models"
	"drainwatch/internal/resilience"
)

// Message is one decoded telemetry message handed to the ingestion loop.
// Ack marks it handled; the offset is committed only once every earlier
// message on the same partition is handled too, so an unhandled reading can
// never be skipped over by a later ack. A message left unacked holds the
// partition's commit position and is redelivered under the broker's
// at-least-once contract.
type Message struct {
	Input *models.ReadingInput

	raw  kafka.Message
	sess *session
}

// Ack marks the message consumed.
func (m *Message) Ack(ctx context.Context) error {
	return m.sess.ack(ctx, m.raw)
}

// session binds one reader generation to its ack bookkeeping. Messages
// capture the session that fetched them, so an ack arriving after a
// reconnect commits through the generation that served the message rather
// than whatever reader is current.
type session struct {
	reader  *kafka.Reader
	tracker *ackTracker
}

// ack marks msg handled and commits the new contiguous position, if any.
func (s *session) ack(ctx context.Context, msg kafka.Message) error {
	last, moved := s.tracker.done(msg)
	if !moved {
		return nil
	}
	return s.reader.CommitMessages(ctx, last)
}

// Consumer maintains the subscription to the telemetry topic, decodes each
// message, and forwards it downstream. Malformed payloads are rejected and
// acked here so they are never redelivered and never reach the coordinator.
type Consumer struct {
	cfg     config.BrokerConfig
	out     chan<- *Message
	manager *resilience.Manager

	// sess is owned by the fetch loop goroutine; workers reach the reader
	// only through the session captured in their Message
	sess      *session
	connected atomic.Bool
}

func NewConsumer(cfg config.BrokerConfig, out chan<- *Message, manager *resilience.Manager) *Consumer {
	return &Consumer{
		cfg:     cfg,
		out:     out,
		manager: manager,
	}
}

// Connected reports whether the subscription is currently live.
func (c *Consumer) Connected() bool {
	return c.connected.Load()
}

// Run blocks fetching messages until ctx is cancelled or the reconnect
// budget is exhausted. On return the subscription is closed.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("broker")

	c.sess = c.newSession()
	defer func() {
		if err := c.sess.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("closing broker reader")
		}
		c.setConnected(false)
	}()

	c.setConnected(true)
	log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group_id", c.cfg.GroupID).
		Msg("subscribed to telemetry topic")

	for {
		msg, err := c.sess.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			if rErr := c.recover(ctx, err); rErr != nil {
				return rErr
			}
			continue
		}

		c.sess.tracker.expect(msg)

		input, err := decode(msg.Value)
		if err != nil {
			metrics.DecodeErrorsTotal.Inc()
			log.Warn().
				Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("dropping malformed telemetry message")
			// ack so the poison message is not redelivered forever
			if err := c.sess.ack(ctx, msg); err != nil {
				log.Warn().Err(err).Msg("committing malformed message")
			}
			continue
		}

		select {
		case c.out <- &Message{Input: input, raw: msg, sess: c.sess}:
		case <-ctx.Done():
			return nil
		}
	}
}

// recover marks the link down and runs the shared reconnect policy. The
// reader is rebuilt on the same group id so the subscription resumes from
// the committed offsets; anything fetched but not committed on the old
// session is fetched again.
func (c *Consumer) recover(ctx context.Context, cause error) error {
	log := logger.WithComponent("broker")
	log.Warn().Err(cause).Msg("broker connection lost")
	c.setConnected(false)

	err := c.manager.Reconnect(ctx, c.probe)
	if errors.Is(err, resilience.ErrReconnectInProgress) {
		// another disconnect event already owns the loop; nothing to do
		return nil
	}
	if err != nil {
		return err
	}

	if closeErr := c.sess.reader.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("closing stale broker reader")
	}
	c.sess = c.newSession()
	c.setConnected(true)
	return nil
}

// probe dials the broker to verify it is reachable again.
func (c *Consumer) probe(ctx context.Context) error {
	metrics.BrokerReconnectsTotal.Inc()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Consumer) newSession() *session {
	return &session{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        c.cfg.Brokers,
			GroupID:        c.cfg.GroupID,
			Topic:          c.cfg.Topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 0, // synchronous commits; acks are the consumption record
		}),
		tracker: newAckTracker(),
	}
}

func (c *Consumer) setConnected(up bool) {
	c.connected.Store(up)
	if up {
		metrics.BrokerConnected.Set(1)
	} else {
		metrics.BrokerConnected.Set(0)
	}
}

// decode parses one wire payload and rejects anything missing the mandatory
// fields, keeping unusable messages out of the pipeline entirely.
func decode(payload []byte) (*models.ReadingInput, error) {
	var input models.ReadingInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return &input, nil
}
