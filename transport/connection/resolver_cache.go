package connection

import (
	"context"
	"net/netip"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedResolver remembers successful lookups of another Resolver for a
// fixed time. Failures are not cached.
type CachedResolver struct {
	resolver Resolver
	cache    *expirable.LRU[string, []netip.Addr]
}

func NewCachedResolver(resolver Resolver, size int, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    expirable.NewLRU[string, []netip.Addr](size, nil, ttl),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addrs, loaded := r.cache.Get(host); loaded {
		return append([]netip.Addr(nil), addrs...), nil
	}
	addrs, err := r.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	r.cache.Add(host, append([]netip.Addr(nil), addrs...))
	return addrs, nil
}

func (r *CachedResolver) Purge() {
	r.cache.Purge()
}
