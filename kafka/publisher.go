package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/seqra/outbox"
)

var (
	// ErrBrokersRequired is returned when no broker addresses are provided.
	ErrBrokersRequired = errors.New("outbox kafka: brokers are required")
	// ErrProducerRequired is returned when a nil producer is provided.
	ErrProducerRequired = errors.New("outbox kafka: producer is required")
)

// Publisher sends outbox messages to Kafka through a SyncProducer.
type Publisher struct {
	producer sarama.SyncProducer
	owned    bool
}

var _ outbox.Publisher = (*Publisher)(nil)

// NewPublisher connects a SyncProducer to the given brokers. Internal sarama
// retries are disabled; the relay schedules retries against the record.
func NewPublisher(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrBrokersRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	producer, err := sarama.NewSyncProducer(brokers, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("outbox kafka: create producer failed: %w", err)
	}

	return &Publisher{producer: producer, owned: true}, nil
}

// NewPublisherWithProducer wraps an existing SyncProducer. Close becomes a
// no-op; the caller keeps ownership.
func NewPublisherWithProducer(producer sarama.SyncProducer) (*Publisher, error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}

	return &Publisher{producer: producer}, nil
}

func saramaConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID

	sc.Net.DialTimeout = cfg.Timeout
	sc.Net.ReadTimeout = cfg.Timeout
	sc.Net.WriteTimeout = cfg.Timeout
	sc.Net.KeepAlive = 30 * time.Second

	sc.Metadata.Timeout = cfg.Timeout
	sc.Metadata.Retry.Max = 1
	sc.Metadata.Retry.Backoff = time.Second

	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 0
	sc.Producer.Timeout = cfg.Timeout
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	if cfg.SASLUser != "" && cfg.SASLPassword != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.SASLUser
		sc.Net.SASL.Password = cfg.SASLPassword
	}

	return sc
}

// Publish sends one message and waits for the broker acknowledgment.
// SendMessage has no context plumbing; cancellation is honored up front and
// in-flight sends are bounded by the producer's network timeouts.
func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pm := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Value:     sarama.ByteEncoder(msg.Payload),
		Timestamp: time.Now(),
		Headers:   buildHeaders(msg),
	}
	if msg.PartitionKey != "" {
		pm.Key = sarama.StringEncoder(msg.PartitionKey)
	}

	if _, _, err := p.producer.SendMessage(pm); err != nil {
		return fmt.Errorf("outbox kafka: send failed: %w", err)
	}

	return nil
}

func buildHeaders(msg outbox.Message) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("outbox-id"), Value: []byte(msg.ID.String())},
		{Key: []byte("event-type"), Value: []byte(msg.EventType)},
		{Key: []byte("schema-version"), Value: []byte(strconv.Itoa(msg.SchemaVersion))},
	}
	if msg.Metadata != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("metadata"), Value: []byte(msg.Metadata)})
	}

	return headers
}

// Close releases the producer when this publisher created it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}

	return p.producer.Close()
}

// IsPermanent reports whether a publish error can never succeed on retry.
func IsPermanent(err error) bool {
	var kerr sarama.KError
	if !errors.As(err, &kerr) {
		return false
	}

	switch kerr {
	case sarama.ErrTopicAuthorizationFailed,
		sarama.ErrClusterAuthorizationFailed,
		sarama.ErrInvalidRequest,
		sarama.ErrInvalidMessage,
		sarama.ErrMessageSizeTooLarge,
		sarama.ErrSASLAuthenticationFailed:
		return true
	default:
		return false
	}
}

// Classifier dead-letters records whose publish error is permanent.
func Classifier(_ outbox.Record, err error) outbox.Action {
	if IsPermanent(err) {
		return outbox.DeadLetter
	}

	return outbox.RetryLater
}
