package molt

import "time"

// ReleaseDescriptor identifies one published release and where to get
// its artifacts. URLs may be https or s3 scheme; the fetcher picks the
// transport accordingly.
type ReleaseDescriptor struct {
	Version     string
	ArchiveURL  string
	ManifestURL string
	Notes       string
	PublishedAt time.Time

	// ArchiveSHA256, when set, is verified against the downloaded
	// archive before extraction begins.
	ArchiveSHA256 string

	// Encrypted marks the archive as age-encrypted for this
	// installation's recipient key.
	Encrypted bool
}
