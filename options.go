package outbox

import (
	"context"
	"time"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = time.Second
	defaultParallelism    = 4
	defaultPublishTimeout = 10 * time.Second
	defaultTopic          = "outbox.events"
	defaultStorageBackoff = time.Second
	defaultStorageCap     = 30 * time.Second
	defaultEscalateAfter  = 5
)

// TopicResolver picks the destination topic for a record.
type TopicResolver func(record Record) string

// FailureHandler is called after a failed publish attempt has been recorded.
type FailureHandler func(ctx context.Context, record Record, err error)

// RelayConfig defines how the Relay polls and processes records.
type RelayConfig struct {
	BatchSize       int
	PollInterval    time.Duration
	Parallelism     int
	PublishTimeout  time.Duration
	Topic           string
	TopicResolver   TopicResolver
	Policy          Policy
	Classifier      Classifier
	OnFailure       FailureHandler
	Clock           Clock
	Logger          Logger
	Metrics         Metrics
	StorageBackoff  time.Duration
	StorageCap      time.Duration
	EscalateAfter   int
	PendingInterval time.Duration
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.Topic == "" {
		c.Topic = defaultTopic
	}
	if c.TopicResolver == nil {
		topic := c.Topic
		c.TopicResolver = func(Record) string { return topic }
	}
	c.Policy = c.Policy.withDefaults()
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.StorageBackoff <= 0 {
		c.StorageBackoff = defaultStorageBackoff
	}
	if c.StorageCap <= 0 {
		c.StorageCap = defaultStorageCap
	}
	if c.EscalateAfter <= 0 {
		c.EscalateAfter = defaultEscalateAfter
	}

	return c
}

// RelayOption configures Relay behavior.
type RelayOption func(*RelayConfig)

// WithBatchSize sets the number of records fetched per cycle.
func WithBatchSize(size int) RelayOption {
	return func(c *RelayConfig) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between empty polls.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PollInterval = interval
	}
}

// WithParallelism sets how many partition groups are processed concurrently.
func WithParallelism(count int) RelayOption {
	return func(c *RelayConfig) {
		c.Parallelism = count
	}
}

// WithPublishTimeout sets the per-publish deadline. A timeout is treated as a
// publish failure.
func WithPublishTimeout(timeout time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PublishTimeout = timeout
	}
}

// WithTopic sets the static destination topic.
func WithTopic(topic string) RelayOption {
	return func(c *RelayConfig) {
		c.Topic = topic
	}
}

// WithTopicResolver sets a per-record topic resolver.
func WithTopicResolver(resolver TopicResolver) RelayOption {
	return func(c *RelayConfig) {
		c.TopicResolver = resolver
	}
}

// WithPolicy sets the retry/dead-letter policy.
func WithPolicy(policy Policy) RelayOption {
	return func(c *RelayConfig) {
		c.Policy = policy
	}
}

// WithMaxRetries sets the retry budget, keeping the rest of the policy.
func WithMaxRetries(maxRetries int) RelayOption {
	return func(c *RelayConfig) {
		c.Policy.MaxRetries = maxRetries
	}
}

// WithClassifier sets the failure classifier for immediate dead-lettering of
// non-retryable errors.
func WithClassifier(classifier Classifier) RelayOption {
	return func(c *RelayConfig) {
		c.Classifier = classifier
	}
}

// WithOnFailure registers a callback invoked after a failure is recorded.
func WithOnFailure(handler FailureHandler) RelayOption {
	return func(c *RelayConfig) {
		c.OnFailure = handler
	}
}

// WithClock sets the relay clock.
func WithClock(clock Clock) RelayOption {
	return func(c *RelayConfig) {
		c.Clock = clock
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger Logger) RelayOption {
	return func(c *RelayConfig) {
		c.Logger = logger
	}
}

// WithMetrics sets the relay metrics recorder.
func WithMetrics(metrics Metrics) RelayOption {
	return func(c *RelayConfig) {
		c.Metrics = metrics
	}
}

// WithStorageBackoff bounds the worker-level backoff applied after storage
// errors.
func WithStorageBackoff(initial, limit time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.StorageBackoff = initial
		c.StorageCap = limit
	}
}

// WithPendingInterval sets the minimum interval between pending count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithPendingInterval(interval time.Duration) RelayOption {
	return func(c *RelayConfig) {
		c.PendingInterval = interval
	}
}
