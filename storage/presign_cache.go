package storage

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultCacheTTL     = 300 * time.Second
	DefaultURLValidity  = 3600 * time.Second
	DefaultCacheEntries = 4096
)

// URLSigner issues signed read URLs.
type URLSigner interface {
	Presign(ctx context.Context, uri ArtifactURI, validity time.Duration) (string, error)
}

// CacheOptions configures a PresignCache. Zero values select the defaults.
type CacheOptions struct {
	TTL        time.Duration
	Validity   time.Duration
	MaxEntries int
	Now        func() time.Time
}

type cacheEntry struct {
	url      string
	issuedAt time.Time
}

// PresignCache memoizes signed URLs per artifact for a bounded TTL.
// It is safe for concurrent use; racing misses may both sign and the
// last insert wins.
type PresignCache struct {
	signer   URLSigner
	ttl      time.Duration
	validity time.Duration
	now      func() time.Time
	entries  *lru.Cache[string, cacheEntry]
}

// NewPresignCache creates a cache in front of signer
func NewPresignCache(signer URLSigner, opts CacheOptions) (*PresignCache, error) {
	if signer == nil {
		return nil, errors.New("storage: signer is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultURLValidity
	}
	if opts.TTL >= opts.Validity {
		return nil, errors.New("storage: cache ttl must be shorter than url validity")
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultCacheEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries, err := lru.New[string, cacheEntry](opts.MaxEntries)
	if err != nil {
		return nil, err
	}

	return &PresignCache{
		signer:   signer,
		ttl:      opts.TTL,
		validity: opts.Validity,
		now:      opts.Now,
		entries:  entries,
	}, nil
}

// GetURL returns a signed URL for uri, reusing one issued less than TTL ago.
// Signing failures are returned and never cached.
func (c *PresignCache) GetURL(ctx context.Context, uri ArtifactURI) (string, error) {
	key := uri.String()
	now := c.now()

	if entry, ok := c.entries.Get(key); ok && now.Sub(entry.issuedAt) < c.ttl {
		return entry.url, nil
	}

	url, err := c.signer.Presign(ctx, uri, c.validity)
	if err != nil {
		return "", err
	}
	c.entries.Add(key, cacheEntry{url: url, issuedAt: now})
	return url, nil
}

// Len returns the number of cached entries, including expired ones not yet replaced.
func (c *PresignCache) Len() int {
	return c.entries.Len()
}
