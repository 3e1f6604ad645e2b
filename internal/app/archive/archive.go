/*
Package archive uploads final content snapshots to S3-compatible object storage.

When a room is reaped, its last content is archived as a timestamped object so the
platform keeps a history of editing sessions. Archiving is strictly best-effort:
failures are logged and counted but never affect the live collaboration path.
*/
package archive

import "context"

// Config holds the settings required to connect to the object storage service.
type Config struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Archiver defines the snapshot archiving contract consumed by the room registry.
type Archiver interface {
	// ArchiveSnapshot uploads the content of a document as a timestamped object.
	ArchiveSnapshot(ctx context.Context, kind, id, content string) error
}

// NewArchiver returns the S3-backed implementation for the given configuration.
func NewArchiver(cfg Config) (Archiver, error) {
	return newS3Archiver(cfg)
}

// Noop is an Archiver that discards every snapshot. Used when S3 is not configured.
type Noop struct{}

func (Noop) ArchiveSnapshot(ctx context.Context, kind, id, content string) error {
	return nil
}
