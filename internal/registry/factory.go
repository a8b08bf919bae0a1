package registry

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"molt/internal/config"
	"molt/internal/molt"
)

// NewRegistryFromConfig creates a Registry implementation based on the
// registry config type. The returned *s3.Client is non-nil only for the
// s3 backend; the fetcher shares it to route s3:// archive URLs through
// the same credentials.
func NewRegistryFromConfig(ctx context.Context, cfg config.RegistryConfig, token string) (molt.Registry, *s3.Client, error) {
	switch cfg.Type {
	case "http":
		if cfg.BaseURL == "" {
			return nil, nil, fmt.Errorf("base_url required for http registry")
		}
		var opts []Option
		if token != "" {
			opts = append(opts, WithToken(token))
		}
		return NewHTTPRegistry(cfg.BaseURL, opts...), nil, nil
	case "s3":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		reg, err := NewS3Registry(client, cfg)
		if err != nil {
			return nil, nil, err
		}
		return reg, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry type: %s", cfg.Type)
	}
}
