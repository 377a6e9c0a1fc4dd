package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/docker/go-units"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateMockBackend(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be positive")
	}
	size, err := units.FromHumanSize(c.Backend.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("backend.max_upload_size: %w", err)
	}
	if size <= 0 {
		return errors.New("backend.max_upload_size must be positive")
	}
	switch c.Backend.Producer {
	case ProducerCombined, ProducerSeparate:
	default:
		return fmt.Errorf("backend.producer must be %q or %q, got %q", ProducerCombined, ProducerSeparate, c.Backend.Producer)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ConcurrencyLimit < 1 {
		return errors.New("workflow.concurrency_limit must be at least 1")
	}
	if c.Workflow.ItemPacingMillis < 0 {
		return errors.New("workflow.item_pacing_ms must be >= 0")
	}
	if c.Workflow.CallTimeoutSeconds < 0 {
		return errors.New("workflow.call_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.TTLSeconds < 1 {
		return errors.New("notifications.ttl_seconds must be at least 1")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateMockBackend() error {
	if c.MockBackend.MinDelayMS < 0 || c.MockBackend.MaxDelayMS < 0 {
		return errors.New("mock_backend delays must be >= 0")
	}
	if c.MockBackend.MaxDelayMS < c.MockBackend.MinDelayMS {
		return errors.New("mock_backend.max_delay_ms must be >= mock_backend.min_delay_ms")
	}
	if c.MockBackend.FailureRate < 0 || c.MockBackend.FailureRate > 1 {
		return errors.New("mock_backend.failure_rate must be between 0 and 1")
	}
	if c.MockBackend.JPEGQuality < 1 || c.MockBackend.JPEGQuality > 100 {
		return errors.New("mock_backend.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognised", c.Logging.Level)
	}
	return nil
}
