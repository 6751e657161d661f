package payment

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultPortOneAPIBase is the production REST v2 endpoint
	DefaultPortOneAPIBase = "https://api.portone.io"

	defaultPortOneTimeout          = 10 * time.Second
	defaultWebhookTolerance        = 5 * time.Minute
	defaultBreakerMaxRequests      = 1
	defaultBreakerInterval         = 60 * time.Second
	defaultBreakerOpenTimeout      = 30 * time.Second
	defaultBreakerFailureThreshold = 5
)

// PortOneConfig contains configuration for the PortOne REST v2 API
type PortOneConfig struct {
	// APISecret authenticates every call ("Authorization: PortOne <secret>")
	APISecret string
	// APIBase overrides the API endpoint, mainly for tests
	APIBase string
	// StoreID is sent as the storeId query/body parameter
	StoreID string
	// ChannelKey selects the PG channel used for charges
	ChannelKey string
	// Timeout bounds each call
	Timeout time.Duration
	// Breaker configures the circuit breaker around the API
	Breaker BreakerConfig
}

// BreakerConfig configures the gateway circuit breaker
type BreakerConfig struct {
	Enabled bool
	// MaxRequests allowed through while half-open
	MaxRequests uint32
	// Interval is the cyclic period of the closed state for clearing counts
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32
}

// WebhookConfig configures webhook signature verification
type WebhookConfig struct {
	// Secret is the Standard Webhooks secret, usually prefixed with "whsec_"
	Secret string
	// Tolerance is the allowed clock skew for webhook-timestamp
	Tolerance time.Duration
}

// Errors for configuration validation
var (
	ErrPortOneMissingAPISecret     = errors.New("portone: missing API secret")
	ErrPortOneMissingStoreID       = errors.New("portone: missing store ID")
	ErrPortOneMissingWebhookSecret = errors.New("portone: missing webhook secret")
	ErrPortOneInvalidWebhookSecret = errors.New("portone: invalid webhook secret")
)

// DefaultBreakerConfig returns the default circuit breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		MaxRequests:      defaultBreakerMaxRequests,
		Interval:         defaultBreakerInterval,
		OpenTimeout:      defaultBreakerOpenTimeout,
		FailureThreshold: defaultBreakerFailureThreshold,
	}
}

// Validate validates the configuration and fills defaults
func (c *PortOneConfig) Validate() error {
	if c.APISecret == "" {
		return ErrPortOneMissingAPISecret
	}
	if c.StoreID == "" {
		return ErrPortOneMissingStoreID
	}
	if c.APIBase == "" {
		c.APIBase = DefaultPortOneAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultPortOneTimeout
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = defaultBreakerMaxRequests
	}
	if c.Breaker.Interval <= 0 {
		c.Breaker.Interval = defaultBreakerInterval
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = defaultBreakerOpenTimeout
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaultBreakerFailureThreshold
	}
	return nil
}

// Validate validates the webhook configuration and fills defaults
func (c *WebhookConfig) Validate() error {
	if c.Secret == "" {
		return ErrPortOneMissingWebhookSecret
	}
	if c.Tolerance <= 0 {
		c.Tolerance = defaultWebhookTolerance
	}
	return nil
}
