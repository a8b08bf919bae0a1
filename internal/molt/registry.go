package molt

import (
	"context"

	"molt/internal/manifest"
)

// Registry answers "what is the newest release for this repository".
//
// Latest returns the highest-versioned release visible with the
// configured credentials. Error set: ErrRegistryEmpty when the registry
// answers with zero releases (a private repository looks empty to
// anonymous callers, so callers should hint at configuring a token
// rather than assume no releases exist), ErrUnauthorized when presented
// credentials are rejected, and ErrNetwork-wrapped transport failures.
//
// Manifest fetches and validates the release's remote manifest. Error
// set: ErrRegistryEmpty for a manifest listing zero files, plus the
// transport failures above.
type Registry interface {
	Latest(ctx context.Context, repository string) (*ReleaseDescriptor, error)
	Manifest(ctx context.Context, desc *ReleaseDescriptor) (*manifest.Manifest, error)
}
