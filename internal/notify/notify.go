package notify

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/alerts"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
)

// Set is the notifiers enabled by configuration.
type Set struct {
	Notifiers []alerts.Notifier
	kafka     *Kafka
}

// FromConfig builds the enabled notifiers. A notifier that cannot be
// constructed is logged and skipped.
func FromConfig(cfg config.NotifyConfig, log zerolog.Logger) *Set {
	s := &Set{}
	if cfg.Kafka.Enabled {
		k, err := NewKafka(cfg.Kafka, log)
		if err != nil {
			log.Warn().Err(err).Msg("kafka notifier disabled")
		} else {
			s.kafka = k
			s.Notifiers = append(s.Notifiers, k)
		}
	}
	if cfg.Telegram.Enabled {
		tg, err := NewTelegram(cfg.Telegram, log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			s.Notifiers = append(s.Notifiers, tg)
		}
	}
	return s
}

// Close releases notifier connections.
func (s *Set) Close() error {
	var errs []error
	if s.kafka != nil {
		errs = append(errs, s.kafka.Close())
	}
	return errors.Join(errs...)
}
