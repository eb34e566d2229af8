package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterRegistry maps credential identity to a token bucket. All runs
// issued under the same credential withdraw from the same bucket, so the
// aggregate call rate stays below the configured limit no matter how many
// refreshes are in flight.
type LimiterRegistry struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// NewLimiterRegistry creates a registry whose buckets allow perMinute
// requests per minute with the given burst capacity.
func NewLimiterRegistry(perMinute, burst int) *LimiterRegistry {
	return &LimiterRegistry{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until one token is available for the given credential.
// It returns the context error if the caller is cancelled first.
func (r *LimiterRegistry) Wait(ctx context.Context, credential string) error {
	return r.Limiter(credential).Wait(ctx)
}

// Limiter returns the token bucket for a credential, creating it on first use.
func (r *LimiterRegistry) Limiter(credential string) *rate.Limiter {
	key := credentialKey(credential)

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(r.limit, r.burst)
		r.buckets[key] = bucket
	}
	return bucket
}

// Size returns the number of distinct credentials seen so far.
func (r *LimiterRegistry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// credentialKey hashes the raw token so the registry never holds it as a
// map key.
func credentialKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}
