package kafka

import "time"

const (
	defaultClientID = "outbox-relay"
	defaultTimeout  = 10 * time.Second
)

// Config defines publisher behavior.
type Config struct {
	// ClientID identifies the producer to the brokers.
	ClientID string
	// Timeout bounds dial, produce and metadata operations.
	Timeout time.Duration
	// SASLUser and SASLPassword enable SASL/PLAIN when both are set.
	SASLUser     string
	SASLPassword string
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	return c
}

// Option configures the publisher.
type Option func(*Config)

// WithClientID sets the Kafka client id.
func WithClientID(id string) Option {
	return func(c *Config) {
		c.ClientID = id
	}
}

// WithTimeout bounds network and produce operations.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithSASLPlain enables SASL/PLAIN authentication.
func WithSASLPlain(user, password string) Option {
	return func(c *Config) {
		c.SASLUser = user
		c.SASLPassword = password
	}
}
