// Package auth supplies GitHub credentials to the remote client and
// supports invalidation when the API rejects them.
package auth

import (
	"os"
	"sync"

	apperrors "github.com/NikkuNoShori/RepoMonitor/internal/errors"
)

// CredentialProvider hands out an opaque access token and clears it when
// the remote API reports it invalid.
type CredentialProvider interface {
	// Token returns the current access token. It returns an UNAUTHORIZED
	// error when no usable credential is available; callers surface that
	// as a re-authentication condition instead of retrying.
	Token() (string, error)

	// Clear drops the cached credential. The next Token call re-obtains
	// one from the underlying source.
	Clear()
}

// EnvProvider reads the token from an environment variable and caches it.
type EnvProvider struct {
	mu     sync.Mutex
	envKey string
	cached string
}

// NewEnvProvider creates a provider backed by the given environment variable.
func NewEnvProvider(envKey string) *EnvProvider {
	return &EnvProvider{envKey: envKey}
}

func (p *EnvProvider) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached == "" {
		p.cached = os.Getenv(p.envKey)
	}
	if p.cached == "" {
		return "", apperrors.NewUnauthorizedError("no GitHub credential available, re-authentication required", nil)
	}
	return p.cached, nil
}

func (p *EnvProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = ""
}
