package payloadarchive

import (
	"errors"
	"fmt"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

// Config holds the blob-store settings for archived webhook payloads.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads the archive configuration from environment variables.
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("PAYLOAD_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if the archive is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the payload archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the payload archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the payload archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the payload archive is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates a standardized object key for an archived payload
func (c *Config) GetObjectKey(event *models.WebhookEvent) string {
	// Format: webhooks/YYYY/MM/provider_eventID.json
	return fmt.Sprintf("webhooks/%04d/%02d/%s_%s.json",
		event.CreatedAt.Year(), int(event.CreatedAt.Month()), event.Provider, event.EventID)
}
