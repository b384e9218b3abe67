package objectstore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Target is an upload destination resolved from the caller-supplied bucket
// value. It stays fixed for the duration of one upload batch.
type Target struct {
	Bucket   string
	Region   string
	Endpoint string // empty for AWS S3, set for DigitalOcean Spaces
}

// Trailing path segments on a bucket URL are tolerated and ignored; only
// the host decides bucket, region and endpoint.
var (
	spacesURLPattern = regexp.MustCompile(`^https?://([^.]+)\.([^.]+)\.digitaloceanspaces\.com(?:/|$)`)
	awsURLPattern    = regexp.MustCompile(`^https?://([^.]+)\.s3\.([^.]+)\.amazonaws\.com(?:/|$)`)
)

// ResolveTarget interprets bucketOrURL as a bare bucket name, a DigitalOcean
// Spaces URL, or an AWS virtual-hosted URL. Bare names target AWS, with the
// region taken from the override, then the configured default, then
// us-east-1.
func ResolveTarget(bucketOrURL, regionOverride, defaultRegion string) Target {
	if m := spacesURLPattern.FindStringSubmatch(bucketOrURL); m != nil {
		return Target{
			Bucket:   m[1],
			Region:   m[2],
			Endpoint: fmt.Sprintf("https://%s.digitaloceanspaces.com", m[2]),
		}
	}
	if m := awsURLPattern.FindStringSubmatch(bucketOrURL); m != nil {
		return Target{Bucket: m[1], Region: m[2]}
	}

	region := regionOverride
	if region == "" {
		region = defaultRegion
	}
	if region == "" {
		region = "us-east-1"
	}
	return Target{Bucket: bucketOrURL, Region: region}
}

// PublicURL returns the browsable URL for a key in this target. Spaces
// endpoints address objects path-style; AWS uses the virtual-hosted form.
func (t Target) PublicURL(key string) string {
	if t.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", t.Endpoint, t.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", t.Bucket, t.Region, key)
}

// ObjectKey builds the storage key for a local file: prefix plus the file's
// posix-style path relative to root, falling back to the bare filename when
// the file does not sit under root.
func ObjectKey(prefix, root, localPath string) string {
	rel := relativeTo(root, localPath)
	return prefix + filepath.ToSlash(rel)
}

func relativeTo(root, localPath string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(localPath)
	}
	absPath, err := filepath.Abs(localPath)
	if err != nil {
		return filepath.Base(localPath)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(localPath)
	}
	return rel
}
