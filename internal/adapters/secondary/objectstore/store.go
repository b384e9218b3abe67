package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	log "github.com/sirupsen/logrus"

	"dental-inference-service/internal/config"
	"dental-inference-service/internal/core/domain"
	ports "dental-inference-service/internal/core/ports/output"
)

// Store uploads files to S3-compatible storage. The S3 client is built per
// batch because the endpoint and credentials depend on the resolved target.
type Store struct {
	creds          config.StorageConfig
	regionOverride string
	inspectedEnv   []string
}

var _ ports.ObjectStore = (*Store)(nil)

// NewStore builds the uploader. regionOverride, when non-empty, wins over
// the configured AWS_REGION for bare bucket names. inspectedEnv is the list
// of .env locations the config loader looked at, quoted in credential
// errors.
func NewStore(creds config.StorageConfig, regionOverride string, inspectedEnv []string) *Store {
	return &Store{
		creds:          creds,
		regionOverride: regionOverride,
		inspectedEnv:   inspectedEnv,
	}
}

// UploadTree walks localRoot and uploads every regular file under prefix,
// preserving subdirectory structure in the keys. Returns relative path ->
// public URL. The first failed upload aborts the batch.
func (s *Store) UploadTree(ctx context.Context, localRoot, bucket, prefix string) (map[string]string, error) {
	target := s.resolve(bucket)
	client, err := s.clientFor(ctx, target)
	if err != nil {
		return nil, err
	}
	return uploadTree(ctx, client, target, localRoot, prefix)
}

func uploadTree(ctx context.Context, client *s3.Client, target Target, localRoot, prefix string) (map[string]string, error) {
	var files []string
	err := filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output dir %s: %w", localRoot, err)
	}

	urls := make(map[string]string, len(files))
	for _, file := range files {
		key := ObjectKey(prefix, localRoot, file)
		if err := putFile(ctx, client, target, file, key); err != nil {
			return nil, err
		}
		rel := filepath.ToSlash(relativeTo(localRoot, file))
		urls[rel] = target.PublicURL(key)
	}

	log.WithFields(log.Fields{
		"bucket": target.Bucket,
		"prefix": prefix,
		"count":  len(urls),
	}).Info("Uploaded result files")

	return urls, nil
}

// UploadFile uploads a single file at the exact key and returns its public
// URL.
func (s *Store) UploadFile(ctx context.Context, localPath, bucket, key string) (string, error) {
	target := s.resolve(bucket)
	client, err := s.clientFor(ctx, target)
	if err != nil {
		return "", err
	}
	if err := putFile(ctx, client, target, localPath, key); err != nil {
		return "", err
	}
	return target.PublicURL(key), nil
}

func (s *Store) resolve(bucket string) Target {
	return ResolveTarget(bucket, s.regionOverride, s.creds.AWSRegion)
}

// clientFor builds an S3 client for the target. Spaces targets require
// explicit credentials and fail fast without them; AWS targets fall back to
// the SDK's default provider chain.
func (s *Store) clientFor(ctx context.Context, target Target) (*s3.Client, error) {
	accessKey, secretKey, err := s.credentialsFor(target)
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(target.Region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if target.Endpoint != "" {
			o.BaseEndpoint = aws.String(target.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *Store) credentialsFor(target Target) (string, string, error) {
	if target.Endpoint != "" {
		accessKey, secretKey := s.creds.SpacesAccessKey, s.creds.SpacesSecretKey
		if accessKey == "" || secretKey == "" {
			accessKey, secretKey = s.creds.AWSAccessKeyID, s.creds.AWSSecretAccessKey
		}
		if accessKey == "" || secretKey == "" {
			return "", "", &domain.ConfigurationError{
				Reason: fmt.Sprintf("no storage credentials found for endpoint %s", target.Endpoint),
				Checked: []string{
					"DO_SPACES_ACCESS_KEY", "DO_SPACES_SECRET_KEY",
					"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
				},
				Inspected: s.inspectedEnv,
			}
		}
		return accessKey, secretKey, nil
	}

	accessKey, secretKey := s.creds.AWSAccessKeyID, s.creds.AWSSecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey, secretKey = s.creds.SpacesAccessKey, s.creds.SpacesSecretKey
	}
	// Empty is fine for AWS: the default provider chain may still supply
	// instance or profile credentials.
	if accessKey == "" || secretKey == "" {
		return "", "", nil
	}
	return accessKey, secretKey, nil
}

func putFile(ctx context.Context, client *s3.Client, target Target, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &domain.UploadError{File: localPath, Bucket: target.Bucket, Key: key, Err: err}
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(target.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		return &domain.UploadError{File: localPath, Bucket: target.Bucket, Key: key, Err: err}
	}

	log.WithFields(log.Fields{
		"bucket": target.Bucket,
		"key":    key,
	}).Debug("Uploaded file")

	return nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
