// Package notify fans created alerts out to Kafka and Telegram.
package notify

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultWriteTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// AlertEvent is the Kafka payload for one created alert.
type AlertEvent struct {
	Event string      `json:"event"`
	Alert model.Alert `json:"alert"`
}

// Kafka publishes each alert as a JSON message keyed by alert id.
type Kafka struct {
	topic  string
	writer messageWriter
	log    zerolog.Logger
}

// NewKafka creates a publisher for cfg. The writer connects lazily.
func NewKafka(cfg config.KafkaConfig, log zerolog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: timeout,
		RequiredAcks: kafkago.RequireOne,
	}
	return &Kafka{topic: cfg.Topic, writer: w, log: log.With().Str("component", "kafka").Logger()}, nil
}

// Name implements alerts.Notifier.
func (k *Kafka) Name() string { return "kafka" }

// Notify writes one message per alert in a single batch.
func (k *Kafka) Notify(ctx context.Context, alerts []model.Alert) error {
	msgs := make([]kafkago.Message, 0, len(alerts))
	for _, a := range alerts {
		b, err := json.Marshal(AlertEvent{Event: "alert.created", Alert: a})
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(a.ID),
			Value: b,
			Headers: []kafkago.Header{
				{Key: "anomaly_type", Value: []byte(a.AnomalyType)},
				{Key: "priority", Value: []byte(a.Priority.String())},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write to %s: %w", k.topic, err)
	}
	k.log.Debug().Int("messages", len(msgs)).Str("topic", k.topic).Msg("published alerts")
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error { return k.writer.Close() }
