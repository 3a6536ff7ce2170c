package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS" default:"localhost:9092"`
	Topic string   `envconfig:"KAFKA_TOPIC" default:"circulation-events"`
}

// EventCirculation is the message published after every completed
// circulation transition. Delivery of patron notifications is handled
// by an external consumer of these events.
type EventCirculation struct {
	Type           string    `json:"type"` // issued | returned | reservation_fulfilled
	Username       string    `json:"username"`
	BookUid        string    `json:"bookUid"`
	TransactionUid string    `json:"transactionUid,omitempty"`
	ReservationUid string    `json:"reservationUid,omitempty"`
	At             time.Time `json:"at"`
}

const (
	EventIssued               = "issued"
	EventReturned             = "returned"
	EventReservationFulfilled = "reservation_fulfilled"
)

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}
