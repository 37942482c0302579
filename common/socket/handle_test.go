//go:build unix

package socket

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var loopback = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 0)

func waitFD(t *testing.T, fd int, events int16) {
	t.Helper()
	pollFDs := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(pollFDs, int(5*time.Second/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		require.NoError(t, err)
		require.Equal(t, 1, n, "descriptor not ready")
		return
	}
}

func openListener(t *testing.T) (*Handle, netip.AddrPort) {
	t.Helper()
	listener, err := Open(unix.AF_INET, unix.SOCK_STREAM)
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})
	require.NoError(t, listener.Bind(loopback))
	require.NoError(t, listener.Listen(0))
	address, err := listener.LocalAddress()
	require.NoError(t, err)
	require.NotZero(t, address.Port())
	return listener, address
}

func connectPair(t *testing.T) (client *Handle, server *Handle) {
	t.Helper()
	listener, address := openListener(t)
	client, err := Open(Family(address.Addr()), unix.SOCK_STREAM)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
	})
	require.NoError(t, client.Connect(address))

	waitFD(t, listener.FD(), unix.POLLIN)
	server, err = listener.Accept()
	require.NoError(t, err)
	t.Cleanup(func() {
		server.Close()
	})
	waitFD(t, client.FD(), unix.POLLOUT)
	require.NoError(t, client.PendingError())
	return
}

func TestStreamSendReceive(t *testing.T) {
	t.Parallel()
	client, server := connectPair(t)

	n, err := client.Send([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	waitFD(t, server.FD(), unix.POLLIN)
	buffer := make([]byte, 64)
	n, err = server.Receive(buffer)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buffer[:n]))

	_, err = server.Receive(buffer)
	require.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, client.Close())
	waitFD(t, server.FD(), unix.POLLIN)
	n, err = server.Receive(buffer)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAddressesMemoized(t *testing.T) {
	t.Parallel()
	client, server := connectPair(t)

	clientLocal, err := client.LocalAddress()
	require.NoError(t, err)
	serverRemote, err := server.RemoteAddress()
	require.NoError(t, err)
	require.Equal(t, clientLocal, serverRemote)
	clientRemote, err := client.RemoteAddress()
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.Close(), net.ErrClosed)
	require.Equal(t, -1, client.FD())

	afterClose, err := client.LocalAddress()
	require.NoError(t, err)
	require.Equal(t, clientLocal, afterClose)
	afterClose, err = client.RemoteAddress()
	require.NoError(t, err)
	require.Equal(t, clientRemote, afterClose)

	_, err = client.Send([]byte("x"))
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestConnectRefused(t *testing.T) {
	t.Parallel()
	probe, err := Open(unix.AF_INET, unix.SOCK_STREAM)
	require.NoError(t, err)
	require.NoError(t, probe.Bind(loopback))
	address, err := probe.LocalAddress()
	require.NoError(t, err)
	require.NoError(t, probe.Close())

	client, err := Open(unix.AF_INET, unix.SOCK_STREAM)
	require.NoError(t, err)
	defer client.Close()
	err = client.Connect(address)
	if err != nil {
		require.ErrorIs(t, err, unix.ECONNREFUSED)
		return
	}
	waitFD(t, client.FD(), unix.POLLOUT)
	require.ErrorIs(t, client.PendingError(), unix.ECONNREFUSED)
}

func TestAcceptWouldBlock(t *testing.T) {
	t.Parallel()
	listener, _ := openListener(t)
	_, err := listener.Accept()
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestDatagram(t *testing.T) {
	t.Parallel()
	first, err := Open(unix.AF_INET, unix.SOCK_DGRAM)
	require.NoError(t, err)
	defer first.Close()
	second, err := Open(unix.AF_INET, unix.SOCK_DGRAM)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, first.Bind(loopback))
	require.NoError(t, second.Bind(loopback))
	firstAddress, err := first.LocalAddress()
	require.NoError(t, err)
	secondAddress, err := second.LocalAddress()
	require.NoError(t, err)
	require.NoError(t, first.Connect(secondAddress))
	require.NoError(t, second.Connect(firstAddress))

	n, err := first.Send([]byte("datagram"))
	require.NoError(t, err)
	require.Equal(t, 8, n)
	waitFD(t, second.FD(), unix.POLLIN)
	buffer := make([]byte, 64)
	n, err = second.Receive(buffer)
	require.NoError(t, err)
	require.Equal(t, "datagram", string(buffer[:n]))

	n, err = first.Send(nil)
	require.NoError(t, err)
	require.Zero(t, n)
	waitFD(t, second.FD(), unix.POLLIN)
	n, err = second.Receive(buffer)
	require.NoError(t, err)
	require.Zero(t, n)
	_, err = second.Receive(buffer)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestSetKeepAlive(t *testing.T) {
	t.Parallel()
	client, _ := connectPair(t)
	require.NoError(t, client.SetKeepAlive(true, time.Minute, 10*time.Second))
	enabled, err := unix.GetsockoptInt(client.FD(), unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	require.NoError(t, err)
	require.NotZero(t, enabled)
}

func TestSockaddrRoundTrip(t *testing.T) {
	t.Parallel()
	v4 := netip.MustParseAddrPort("10.0.0.1:53")
	require.Equal(t, unix.AF_INET, Family(v4.Addr()))
	require.Equal(t, v4, fromSockaddr(toSockaddr(unix.AF_INET, v4)))
	v6 := netip.MustParseAddrPort("[2001:db8::1]:443")
	require.Equal(t, unix.AF_INET6, Family(v6.Addr()))
	require.Equal(t, v6, fromSockaddr(toSockaddr(unix.AF_INET6, v6)))
	mapped := netip.MustParseAddrPort("[::ffff:10.0.0.1]:53")
	require.Equal(t, unix.AF_INET, Family(mapped.Addr()))
	require.Equal(t, v4, fromSockaddr(toSockaddr(unix.AF_INET, mapped)))
}
