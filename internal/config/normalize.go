package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeGenerator()
	if err := c.normalizeMockBackend(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SCANMASTER_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeBackend() {
	if value, ok := os.LookupEnv("SCANMASTER_BACKEND_URL"); ok && strings.TrimSpace(value) != "" {
		c.Backend.BaseURL = value
	}
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendURL
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = defaultBackendTimeout
	}
	c.Backend.MaxUploadSize = strings.TrimSpace(c.Backend.MaxUploadSize)
	if c.Backend.MaxUploadSize == "" {
		c.Backend.MaxUploadSize = defaultMaxUploadSize
	}
	c.Backend.Producer = strings.ToLower(strings.TrimSpace(c.Backend.Producer))
	if c.Backend.Producer == "" {
		c.Backend.Producer = ProducerCombined
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ConcurrencyLimit == 0 {
		c.Workflow.ConcurrencyLimit = defaultConcurrencyLimit
	}
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.TTLSeconds == 0 {
		c.Notifications.TTLSeconds = defaultNotificationTTL
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeGenerator() {
	c.Generator.APIKey = strings.TrimSpace(c.Generator.APIKey)
	if c.Generator.APIKey == "" {
		for _, key := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Generator.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.Generator.Model = strings.TrimSpace(c.Generator.Model)
	if c.Generator.Model == "" {
		c.Generator.Model = defaultGeneratorModel
	}
	if c.Generator.TimeoutSeconds <= 0 {
		c.Generator.TimeoutSeconds = defaultGeneratorTimeout
	}
}

func (c *Config) normalizeMockBackend() error {
	c.MockBackend.Bind = strings.TrimSpace(c.MockBackend.Bind)
	if c.MockBackend.Bind == "" {
		c.MockBackend.Bind = defaultMockBackendBind
	}
	var err error
	if c.MockBackend.DBPath, err = expandPath(strings.TrimSpace(c.MockBackend.DBPath)); err != nil {
		return fmt.Errorf("mock_backend.db_path: %w", err)
	}
	if c.MockBackend.JPEGQuality == 0 {
		c.MockBackend.JPEGQuality = defaultMockBackendJPEGQual
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
