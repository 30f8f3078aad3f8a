package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// ErrMissingAPIKey is returned when VIRUSTOTAL_API_KEY is unset or blank.
var ErrMissingAPIKey = errors.New("VIRUSTOTAL_API_KEY is not set")

// Credentials holds secrets read from the environment once at startup.
type Credentials struct {
	APIKey string `env:"VIRUSTOTAL_API_KEY"`
	URL    string `env:"VIRUSTOTAL_URL,default=https://www.virustotal.com"`

	// Static keys for an S3-compatible endpoint; AWS endpoints use the
	// default credential chain.
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
}

// LoadCredentials reads Credentials from the process environment, after
// merging a .env file from the working directory when one exists. Variables
// already present in the environment win over the file.
func LoadCredentials(ctx context.Context) (Credentials, error) {
	_ = godotenv.Load()
	return loadCredentials(ctx, envconfig.OsLookuper())
}

func loadCredentials(ctx context.Context, lookuper envconfig.Lookuper) (Credentials, error) {
	var creds Credentials
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &creds,
		Lookuper: lookuper,
	}); err != nil {
		return Credentials{}, fmt.Errorf("failed to read environment: %w", err)
	}
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	return creds, nil
}

// Validate rejects credentials that cannot be used to call the scanning service.
func (c Credentials) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.URL == "" {
		return errors.New("VIRUSTOTAL_URL must not be empty")
	}
	return nil
}
