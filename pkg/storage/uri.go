// Package storage parses the object storage locations an init checkpoint
// may be read from.
package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider names a storage backend.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderLocal Provider = "local"
)

// URIScheme defines supported URI schemes
type URIScheme string

const (
	SchemeS3    URIScheme = "s3"
	SchemeLocal URIScheme = "local"
)

// ObjectURI identifies a bucket prefix, or a local path for ProviderLocal.
type ObjectURI struct {
	Provider   Provider
	BucketName string
	Prefix     string
}

// String renders the URI back in scheme form.
func (u ObjectURI) String() string {
	switch u.Provider {
	case ProviderAWS:
		if u.Prefix == "" {
			return fmt.Sprintf("s3://%s", u.BucketName)
		}
		return fmt.Sprintf("s3://%s/%s", u.BucketName, u.Prefix)
	default:
		return u.Prefix
	}
}

// IsObjectStorageURI reports whether s names a remote object store location.
func IsObjectStorageURI(s string) bool {
	return strings.HasPrefix(s, string(SchemeS3)+"://")
}

// ParseURI parses s3://bucket/prefix, local://path or a bare local path.
func ParseURI(uriStr string) (*ObjectURI, error) {
	if uriStr == "" {
		return nil, fmt.Errorf("empty URI")
	}
	if !strings.Contains(uriStr, "://") {
		return &ObjectURI{Provider: ProviderLocal, Prefix: uriStr}, nil
	}

	u, err := url.Parse(uriStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URI: %w", err)
	}

	switch URIScheme(u.Scheme) {
	case SchemeS3:
		return parseS3URI(u)
	case SchemeLocal:
		return &ObjectURI{Provider: ProviderLocal, Prefix: strings.TrimPrefix(uriStr, "local://")}, nil
	default:
		return nil, fmt.Errorf("unsupported URI scheme: %s", u.Scheme)
	}
}

// parseS3URI keeps the whole path as a prefix; checkpoints are directories.
func parseS3URI(u *url.URL) (*ObjectURI, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("invalid S3 URI: missing bucket name")
	}
	return &ObjectURI{
		Provider:   ProviderAWS,
		BucketName: u.Host,
		Prefix:     strings.Trim(u.Path, "/"),
	}, nil
}
