package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageHarvest   Stage = "harvest"
	StageReconcile Stage = "reconcile"
	StageSync      Stage = "sync"
)

// RunEvent announces that a stage of a run finished.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Stage      Stage     `json:"stage"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Summary    any       `json:"summary,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher sends run events.
type Publisher interface {
	Publish(ctx context.Context, event RunEvent) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON run events keyed by run id.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// New returns a KafkaPublisher for cfg, or a Nop publisher when no brokers
// are configured.
func New(cfg Config, logger *zap.Logger) Publisher {
	brokers := splitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return Nop{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaPublisher(w, logger.With(zap.String("topic", cfg.Topic)))
}

// NewKafkaPublisher wraps an existing writer.
func NewKafkaPublisher(w MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger.Named("events")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event RunEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling run event: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.RunID), Value: value}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish run event",
			zap.String("run_id", event.RunID),
			zap.String("stage", string(event.Stage)),
			zap.Error(err))
		return fmt.Errorf("publishing run event: %w", err)
	}
	p.logger.Debug("Run event published",
		zap.String("run_id", event.RunID),
		zap.String("stage", string(event.Stage)),
		zap.Int("value_size", len(value)))
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, RunEvent) error { return nil }
func (Nop) Close() error                            { return nil }

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
