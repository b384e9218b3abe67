package ports

import "context"

// ObjectStore uploads pipeline outputs to S3-compatible storage and hands
// back public URLs. The bucket argument accepts a bare name or a bucket URL;
// the adapter works out provider, region, and addressing style.
type ObjectStore interface {
	// UploadTree walks localRoot recursively and uploads every file under
	// prefix, preserving relative paths. Returns relative path -> public URL.
	// The batch stops at the first failure.
	UploadTree(ctx context.Context, localRoot, bucket, prefix string) (map[string]string, error)
	UploadFile(ctx context.Context, localPath, bucket, key string) (string, error)
}
