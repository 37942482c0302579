package connection

import (
	"context"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"github.com/stretchr/testify/require"
)

func TestCachedResolver(t *testing.T) {
	var lookups atomic.Int32
	resolver := NewCachedResolver(resolverFunc(func(ctx context.Context, host string) ([]netip.Addr, error) {
		lookups.Add(1)
		if host == "missing.test" {
			return nil, E.New("no such host")
		}
		return []netip.Addr{netip.MustParseAddr("192.0.2.1"), netip.MustParseAddr("192.0.2.2")}, nil
	}), 16, time.Minute)

	addrs, err := resolver.Resolve(context.Background(), "service.test")
	require.NoError(t, err)
	addrs[0], addrs[1] = addrs[1], addrs[0]

	addrs, err = resolver.Resolve(context.Background(), "service.test")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("192.0.2.1"), addrs[0])
	require.Equal(t, int32(1), lookups.Load())

	_, err = resolver.Resolve(context.Background(), "missing.test")
	require.Error(t, err)
	_, err = resolver.Resolve(context.Background(), "missing.test")
	require.Error(t, err)
	require.Equal(t, int32(3), lookups.Load())

	resolver.Purge()
	_, err = resolver.Resolve(context.Background(), "service.test")
	require.NoError(t, err)
	require.Equal(t, int32(4), lookups.Load())
}
