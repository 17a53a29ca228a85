package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/seqra/outbox"
)

func newMockPublisher(t *testing.T) (*Publisher, *mocks.SyncProducer) {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	pub, err := NewPublisherWithProducer(producer)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	return pub, producer
}

func TestPublisherSendsKeyAndHeaders(t *testing.T) {
	pub, producer := newMockPublisher(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "orders" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		found := map[string]string{}
		for _, h := range msg.Headers {
			found[string(h.Key)] = string(h.Value)
		}
		if found["event-type"] != "OrderCreated" {
			return fmt.Errorf("missing event-type header: %v", found)
		}
		if found["schema-version"] != "2" {
			return fmt.Errorf("missing schema-version header: %v", found)
		}
		if found["metadata"] != "corr-42" {
			return fmt.Errorf("missing metadata header: %v", found)
		}
		return nil
	})

	err := pub.Publish(context.Background(), outbox.Message{
		Topic:         "orders",
		PartitionKey:  "order-1",
		Payload:       []byte(`{"n":1}`),
		EventType:     "OrderCreated",
		SchemaVersion: 2,
		Metadata:      "corr-42",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestPublisherOmitsKeyWhenUnset(t *testing.T) {
	pub, producer := newMockPublisher(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Key != nil {
			return fmt.Errorf("expected nil key for independent record")
		}
		return nil
	})

	if err := pub.Publish(context.Background(), outbox.Message{Topic: "orders", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestPublisherWrapsSendError(t *testing.T) {
	pub, producer := newMockPublisher(t)
	producer.ExpectSendMessageAndFail(sarama.ErrRequestTimedOut)

	err := pub.Publish(context.Background(), outbox.Message{Topic: "orders", Payload: []byte(`{}`)})
	if !errors.Is(err, sarama.ErrRequestTimedOut) {
		t.Fatalf("expected wrapped sarama error, got %v", err)
	}
}

func TestPublisherHonorsCancelledContext(t *testing.T) {
	pub, _ := newMockPublisher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pub.Publish(ctx, outbox.Message{Topic: "orders"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(nil); !errors.Is(err, ErrBrokersRequired) {
		t.Fatalf("expected ErrBrokersRequired, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{sarama.ErrMessageSizeTooLarge, true},
		{sarama.ErrTopicAuthorizationFailed, true},
		{fmt.Errorf("send failed: %w", sarama.ErrInvalidMessage), true},
		{sarama.ErrRequestTimedOut, false},
		{sarama.ErrLeaderNotAvailable, false},
		{errors.New("connection refused"), false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Fatalf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClassifier(t *testing.T) {
	if got := Classifier(outbox.Record{}, sarama.ErrMessageSizeTooLarge); got != outbox.DeadLetter {
		t.Fatalf("expected permanent error to dead-letter")
	}
	if got := Classifier(outbox.Record{}, sarama.ErrRequestTimedOut); got != outbox.RetryLater {
		t.Fatalf("expected transient error to retry")
	}
}
