package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/models"
)

// Publisher streams executed paper trades onto a Kafka topic for
// downstream consumers (reporting, the research pipeline). Publishing is
// best-effort: a broker error is logged and dropped, never surfaced to
// the trade path.
type Publisher struct {
	Writer *kafka.Writer
	Logger *zap.Logger
}

func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		Dialer:       dialer,
		BatchTimeout: 200 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
	})
	return &Publisher{Writer: w, Logger: logger}
}

// PublishTrade emits one executed trade, keyed by portfolio|symbol so a
// portfolio's fills stay ordered within a partition.
func (p *Publisher) PublishTrade(ctx context.Context, t models.Trade) {
	b, err := json.Marshal(t)
	if err != nil {
		p.Logger.Error("marshal trade event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(t.PortfolioID.String() + "|" + t.Symbol),
		Value: b,
		Time:  t.ExecutedAt,
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		p.Logger.Error("publish trade event",
			zap.String("trade_id", t.ID.String()), zap.Error(err))
		return
	}
	p.Logger.Debug("trade event published", zap.String("trade_id", t.ID.String()))
}

// EnsureTopic attempts to create the topic (best-effort).
func EnsureTopic(ctx context.Context, broker, topic string, logger *zap.Logger) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		logger.Warn("ensure topic: dial failed", zap.Error(err))
		return
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Info("ensure topic", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Publisher) Close() error { return p.Writer.Close() }
