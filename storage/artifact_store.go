package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Logical prefixes of the artifact bucket.
const (
	PrefixGeneratedAssets   = "generated-assets/"
	PrefixProcessedAssets   = "processed-assets/"
	PrefixGenerated3DAssets = "generated-3d-assets/"
)

var (
	ErrInvalidURI = errors.New("storage: invalid artifact uri")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ArtifactStore writes generated artifacts and issues time-limited read URLs.
type ArtifactStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (ArtifactURI, error)
	Presign(ctx context.Context, uri ArtifactURI, validity time.Duration) (string, error)
}

// ArtifactURI addresses one object as s3://bucket/key.
type ArtifactURI struct {
	Bucket string
	Key    string
}

// ParseURI parses an s3://bucket/key reference.
func ParseURI(raw string) (ArtifactURI, error) {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return ArtifactURI{}, fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return ArtifactURI{}, fmt.Errorf("%w: %q", ErrInvalidURI, raw)
	}
	return ArtifactURI{Bucket: bucket, Key: key}, nil
}

func (u ArtifactURI) String() string {
	return "s3://" + u.Bucket + "/" + u.Key
}

// Ext returns the file extension of the key without the dot, lowercased.
func (u ArtifactURI) Ext() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(u.Key), "."))
}

// Base returns the last path element of the key.
func (u ArtifactURI) Base() string {
	return path.Base(u.Key)
}

// WithExt returns the same location with the file extension replaced by ext.
func (u ArtifactURI) WithExt(ext string) ArtifactURI {
	ext = strings.TrimPrefix(ext, ".")
	stem := strings.TrimSuffix(u.Key, path.Ext(u.Key))
	return ArtifactURI{Bucket: u.Bucket, Key: stem + "." + ext}
}

// KeyFromLocation extracts an object key from a stored catalog path. It accepts
// s3:// URIs, virtual-hosted object URLs and bare keys.
func KeyFromLocation(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", ErrInvalidKey
	case strings.HasPrefix(raw, "s3://"):
		uri, err := ParseURI(raw)
		if err != nil {
			return "", err
		}
		return uri.Key, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return CleanKey(u.Path)
	default:
		return CleanKey(raw)
	}
}

// CleanKey normalizes a key and rejects keys escaping the bucket root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}
