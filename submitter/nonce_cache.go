package submitter

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	cacheSize = 1000
)

// nonceFetcher reads the chain's view of an account nonce. Both adapter
// families provide one.
type nonceFetcher func(ctx context.Context, account string) (uint64, error)

// NonceCache serializes nonce assignment for the relayer account of one
// destination. It keeps the last handed out nonce above the chain's own
// view so back-to-back payouts do not collide while earlier ones are still
// in the pool.
type NonceCache struct {
	fetch nonceFetcher

	mu    sync.Mutex
	cache *lru.Cache[string, uint64]
}

// NewNonceCache creates a nonce cache backed by the given fetcher.
func NewNonceCache(fetch nonceFetcher) (*NonceCache, error) {
	cache, err := lru.New[string, uint64](int(cacheSize))
	if err != nil {
		return nil, err
	}
	return &NonceCache{
		fetch: fetch,
		cache: cache,
	}, nil
}

// GetNextNonce returns the nonce the next payout of the account must use.
func (nc *NonceCache) GetNextNonce(ctx context.Context, account string) (uint64, error) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nonce, err := nc.fetch(ctx, account)
	if err != nil {
		return 0, err
	}
	if tempNonce, found := nc.cache.Get(account); found {
		if tempNonce >= nonce {
			nonce = tempNonce + 1
		}
	}
	nc.cache.Add(account, nonce)
	return nonce, nil
}

// Remove drops the cached nonce of an account, forcing the next assignment
// to trust the chain again. Called after nonce related submit errors.
func (nc *NonceCache) Remove(account string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.cache.Remove(account)
}
