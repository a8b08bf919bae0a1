package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"molt/internal/molt"
	"molt/internal/registry"
)

// download routes an archive URL to the transport matching its scheme
// and streams the body into dst, feeding the meter as bytes arrive.
func (f *Fetcher) download(ctx context.Context, rawURL string, dst *os.File, meter *progressMeter) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing archive url %s: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.downloadHTTP(ctx, rawURL, dst, meter)
	case "s3":
		return f.downloadS3(ctx, rawURL, dst, meter)
	default:
		return fmt.Errorf("unsupported archive url scheme %q in %s", u.Scheme, rawURL)
	}
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL string, dst *os.File, meter *progressMeter) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: downloading %s: %v", molt.ErrNetwork, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: archive %s returned status %d", molt.ErrNetwork, rawURL, resp.StatusCode)
	}
	meter.SetTotal(resp.ContentLength)

	if _, err := io.Copy(&progressWriter{w: dst, m: meter}, resp.Body); err != nil {
		return fmt.Errorf("%w: reading archive body: %v", molt.ErrNetwork, err)
	}
	return nil
}

func (f *Fetcher) downloadS3(ctx context.Context, rawURL string, dst *os.File, meter *progressMeter) error {
	if f.s3 == nil {
		return fmt.Errorf("archive url %s requires an s3 registry configuration", rawURL)
	}
	bucket, key, err := registry.SplitS3URL(rawURL)
	if err != nil {
		return err
	}

	head, err := f.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil && head.ContentLength != nil {
		meter.SetTotal(*head.ContentLength)
	}

	downloader := manager.NewDownloader(f.s3)
	_, err = downloader.Download(ctx, &progressWriterAt{wa: dst, m: meter}, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: downloading s3://%s/%s: %v", molt.ErrNetwork, bucket, key, err)
	}
	return nil
}
