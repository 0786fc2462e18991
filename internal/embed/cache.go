package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/david/tender-finder/internal/obs"
)

// CachedEmbedder wraps an Embedder with a content-addressed cache keyed
// by hash(model_id || text), so re-embedding an unchanged tender or
// profile never hits the upstream model twice.
type CachedEmbedder struct {
	inner   Embedder
	redis   *redis.Client
	modelID string
	ttl     time.Duration
	metrics *obs.Metrics
}

// NewCachedEmbedder wraps inner with a Redis-backed cache. ttl of zero
// means cache entries never expire — appropriate since the cache key
// already binds the model id, so a model swap naturally misses rather
// than serving a stale vector.
func NewCachedEmbedder(inner Embedder, client *redis.Client, modelID string, ttl time.Duration, metrics *obs.Metrics) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, redis: client, modelID: modelID, ttl: ttl, metrics: metrics}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.modelID + "||" + text))
	return "embed:" + hex.EncodeToString(h[:])
}

// Embed returns the cached vector for text if present, otherwise calls
// through to inner and populates the cache. A Redis outage degrades to
// a pass-through rather than failing the request.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrInputInvalid
	}

	key := c.cacheKey(text)
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
			vec, decErr := decodeVector(raw)
			if decErr == nil {
				c.metrics.EmbeddingCacheHits.Inc()
				return vec, nil
			}
		}
	}
	c.metrics.EmbeddingCacheMisses.Inc()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		_ = c.redis.Set(ctx, key, encodeVector(vec), c.ttl).Err()
	}
	return vec, nil
}

// EmbedBatch embeds each text through Embed, so batch calls share the
// same cache lookups as single calls.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error) {
	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, t := range texts {
		vecs[i], errs[i] = c.Embed(ctx, t)
	}
	return vecs, errs
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embed: corrupt cache entry of length %d", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
