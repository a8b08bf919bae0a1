package registry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"molt/internal/config"
	"molt/internal/manifest"
	"molt/internal/molt"
)

// S3Registry reads releases from an S3 bucket laid out as
//
//	<prefix>/<repository>/releases/<version>/manifest.json
//	<prefix>/<repository>/releases/<version>/bundle.tar.gz[.age]
//	<prefix>/<repository>/releases/<version>/bundle.sha256   (optional)
//
// Version directories are enumerated with a delimiter listing; the
// highest semantic version wins. Descriptor URLs use the s3:// scheme
// so the fetcher can route them back through the same client.
type S3Registry struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Client builds an S3 client from registry configuration. A custom
// endpoint switches the client to path-style addressing for
// S3-compatible stores.
func NewS3Client(ctx context.Context, cfg config.RegistryConfig) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// NewS3Registry creates a registry over the configured bucket.
func NewS3Registry(client *s3.Client, cfg config.RegistryConfig) (*S3Registry, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 registry requires s3_bucket to be set")
	}
	prefix := strings.Trim(cfg.S3Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Registry{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: prefix,
	}, nil
}

// Latest enumerates version directories and describes the highest one.
func (r *S3Registry) Latest(ctx context.Context, repository string) (*molt.ReleaseDescriptor, error) {
	root := r.releasesRoot(repository)

	var best string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(root),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: listing releases in s3://%s/%s: %v", molt.ErrNetwork, r.bucket, root, err)
		}
		for _, cp := range page.CommonPrefixes {
			version := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), root), "/")
			if !molt.ValidVersion(version) {
				continue
			}
			if best == "" || molt.CompareVersions(version, best) > 0 {
				best = version
			}
		}
	}
	if best == "" {
		return nil, fmt.Errorf("%w: s3://%s/%s", molt.ErrRegistryEmpty, r.bucket, root)
	}

	return r.describe(ctx, root, best)
}

// describe inspects one version directory and builds its descriptor.
func (r *S3Registry) describe(ctx context.Context, root, version string) (*molt.ReleaseDescriptor, error) {
	dir := root + version + "/"

	out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(dir),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing release %s: %v", molt.ErrNetwork, version, err)
	}

	desc := &molt.ReleaseDescriptor{Version: version}
	var haveManifest, haveChecksum, haveNotes bool
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		switch strings.TrimPrefix(key, dir) {
		case "manifest.json":
			desc.ManifestURL = r.s3URL(key)
			haveManifest = true
		case "bundle.tar.gz":
			desc.ArchiveURL = r.s3URL(key)
		case "bundle.tar.gz.age":
			desc.ArchiveURL = r.s3URL(key)
			desc.Encrypted = true
		case "bundle.sha256":
			haveChecksum = true
		case "notes.txt":
			haveNotes = true
		}
		if obj.LastModified != nil && obj.LastModified.After(desc.PublishedAt) {
			desc.PublishedAt = *obj.LastModified
		}
	}
	if !haveManifest {
		return nil, fmt.Errorf("release %s has no manifest.json", version)
	}
	if desc.ArchiveURL == "" {
		return nil, fmt.Errorf("release %s has no bundle archive", version)
	}

	if haveChecksum {
		sum, err := r.readChecksum(ctx, dir+"bundle.sha256")
		if err != nil {
			return nil, err
		}
		desc.ArchiveSHA256 = sum
	}
	if haveNotes {
		data, err := r.readObject(ctx, dir+"notes.txt", 64<<10)
		if err != nil {
			return nil, err
		}
		desc.Notes = string(data)
	}
	return desc, nil
}

// Manifest fetches and validates the release's remote manifest object.
func (r *S3Registry) Manifest(ctx context.Context, desc *molt.ReleaseDescriptor) (*manifest.Manifest, error) {
	_, key, err := SplitS3URL(desc.ManifestURL)
	if err != nil {
		return nil, err
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching manifest %s: %v", molt.ErrNetwork, key, err)
	}
	defer out.Body.Close()

	m, err := manifest.Decode(out.Body)
	if err != nil {
		return nil, fmt.Errorf("remote manifest for %s: %w", desc.Version, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%w: release %s manifest lists no files", molt.ErrRegistryEmpty, desc.Version)
	}
	return m, nil
}

// readChecksum reads a small "<hex>  <name>" checksum object.
func (r *S3Registry) readChecksum(ctx context.Context, key string) (string, error) {
	data, err := r.readObject(ctx, key, 4096)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("checksum object %s is empty", key)
	}
	return strings.ToLower(fields[0]), nil
}

// readObject reads a small object in full, capped at limit bytes.
func (r *S3Registry) readObject(ctx context.Context, key string, limit int64) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", molt.ErrNetwork, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// releasesRoot builds the listing prefix for a repository.
func (r *S3Registry) releasesRoot(repository string) string {
	root := r.prefix
	if repository != "" {
		root += strings.Trim(repository, "/") + "/"
	}
	return root + "releases/"
}

// s3URL renders a bucket key as an s3:// URL.
func (r *S3Registry) s3URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", r.bucket, key)
}

// SplitS3URL splits "s3://bucket/key" into bucket and key.
func SplitS3URL(rawURL string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(rawURL, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", rawURL)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 url: %s", rawURL)
	}
	return bucket, key, nil
}

// Compile-time check that S3Registry implements molt.Registry
var _ molt.Registry = (*S3Registry)(nil)
