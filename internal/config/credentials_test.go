package config

import (
	"context"
	"errors"
	"testing"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadCredentials_Defaults(t *testing.T) {
	creds, err := loadCredentials(context.Background(), envconfig.MapLookuper(map[string]string{
		"VIRUSTOTAL_API_KEY": "  secret  ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.APIKey != "secret" {
		t.Fatalf("expected trimmed key, got %q", creds.APIKey)
	}
	if creds.URL != "https://www.virustotal.com" {
		t.Fatalf("expected default URL, got %q", creds.URL)
	}
	if err := creds.Validate(); err != nil {
		t.Fatalf("expected valid credentials, got %v", err)
	}
}

func TestLoadCredentials_URLOverride(t *testing.T) {
	creds, err := loadCredentials(context.Background(), envconfig.MapLookuper(map[string]string{
		"VIRUSTOTAL_API_KEY": "secret",
		"VIRUSTOTAL_URL":     "http://127.0.0.1:8080",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.URL != "http://127.0.0.1:8080" {
		t.Fatalf("expected overridden URL, got %q", creds.URL)
	}
}

func TestCredentialsValidate_MissingKey(t *testing.T) {
	for _, key := range []string{"", "   "} {
		creds, err := loadCredentials(context.Background(), envconfig.MapLookuper(map[string]string{
			"VIRUSTOTAL_API_KEY": key,
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := creds.Validate(); !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey for %q, got %v", key, err)
		}
	}
}

func TestLoadCredentials_StorageKeys(t *testing.T) {
	creds, err := loadCredentials(context.Background(), envconfig.MapLookuper(map[string]string{
		"S3_ACCESS_KEY": "access",
		"S3_SECRET_KEY": "secret",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.S3AccessKey != "access" || creds.S3SecretKey != "secret" {
		t.Fatalf("unexpected storage keys: %+v", creds)
	}
	if err := creds.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("storage keys alone should not validate, got %v", err)
	}
}
