package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/openshelf/library-service/pkg/circuit_breaker"
)

// Notifier publishes circulation events through a circuit breaker so a
// broker outage degrades to dropped events instead of slow requests.
type Notifier struct {
	producer sarama.SyncProducer
	topic    string
	cb       circuit_breaker.CircuitBreaker
	log      *zap.Logger
}

func NewNotifier(producer sarama.SyncProducer, topic string, log *zap.Logger) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    topic,
		cb:       circuit_breaker.New(20, 30*time.Second, 0.5, 5),
		log:      log.Named("notifier"),
	}
}

func (n *Notifier) Notify(event EventCirculation) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.cb.Call(func() error {
		msg := &sarama.ProducerMessage{Topic: n.topic, Value: sarama.StringEncoder(data)}
		if _, _, err := n.producer.SendMessage(msg); err != nil {
			n.log.Error("SendMessage", zap.Error(err))
			return err
		}
		return nil
	})
}
