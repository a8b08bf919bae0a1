package registry_test

import (
	"context"
	"testing"

	"molt/internal/config"
	"molt/internal/registry"
)

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("http", func(t *testing.T) {
		t.Parallel()
		reg, s3c, err := registry.NewRegistryFromConfig(context.Background(), config.RegistryConfig{
			Type:    "http",
			BaseURL: "https://releases.example.com",
		}, "tok-123")
		if err != nil {
			t.Fatalf("NewRegistryFromConfig() error = %v", err)
		}
		if _, ok := reg.(*registry.HTTPRegistry); !ok {
			t.Errorf("registry = %T, want *HTTPRegistry", reg)
		}
		if s3c != nil {
			t.Error("http backend should not return an s3 client")
		}
	})

	t.Run("http without base_url", func(t *testing.T) {
		t.Parallel()
		_, _, err := registry.NewRegistryFromConfig(context.Background(), config.RegistryConfig{Type: "http"}, "")
		if err == nil {
			t.Error("expected error for http registry without base_url")
		}
	})

	t.Run("s3", func(t *testing.T) {
		t.Parallel()
		reg, s3c, err := registry.NewRegistryFromConfig(context.Background(), config.RegistryConfig{
			Type:              "s3",
			S3Bucket:          "releases",
			S3Region:          "us-east-1",
			S3Endpoint:        "http://localhost:9000",
			S3AccessKeyID:     "minio",
			S3SecretAccessKey: "minio123",
		}, "")
		if err != nil {
			t.Fatalf("NewRegistryFromConfig() error = %v", err)
		}
		if _, ok := reg.(*registry.S3Registry); !ok {
			t.Errorf("registry = %T, want *S3Registry", reg)
		}
		if s3c == nil {
			t.Error("s3 backend should return its client for the fetcher")
		}
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		t.Parallel()
		_, _, err := registry.NewRegistryFromConfig(context.Background(), config.RegistryConfig{Type: "s3"}, "")
		if err == nil {
			t.Error("expected error for s3 registry without bucket")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		_, _, err := registry.NewRegistryFromConfig(context.Background(), config.RegistryConfig{Type: "ftp"}, "")
		if err == nil {
			t.Error("expected error for unknown registry type")
		}
	})
}
