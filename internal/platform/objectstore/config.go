package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maxeo-labs/canary-go/internal/platform/env"
)

// Config points at the S3-compatible store that keeps run evidence.
// Leaving the endpoint empty disables the store entirely; the probe then
// writes evidence to the local filesystem instead.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketEvidence string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("CANARY_S3_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("CANARY_S3_ENDPOINT", ""),
		AccessKey:      env.String("CANARY_S3_ACCESS_KEY", ""),
		SecretKey:      env.String("CANARY_S3_SECRET_KEY", ""),
		Region:         env.String("CANARY_S3_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketEvidence: env.String("CANARY_S3_BUCKET", "canary-evidence"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Enabled reports whether an object store endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketEvidence) == "" {
		return errors.New("evidence bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
