//go:build unix

package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/sagernet/sing-reactor/common/reactor"
	"github.com/sagernet/sing-reactor/transport/connection"

	"github.com/stretchr/testify/require"
)

func newLoopback(t *testing.T) (*reactor.Reactor, *connection.Listener, uint16) {
	r, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
	})
	listener, err := connection.Listen(r, "127.0.0.1:0", connection.Options{})
	require.NoError(t, err)
	address, err := listener.Address()
	require.NoError(t, err)
	return r, listener, address.Port()
}

func run(t *testing.T, r *reactor.Reactor) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))
}

func TestLineEchoOverStream(t *testing.T) {
	r, listener, port := newLoopback(t)
	listener.SetAcceptHandler(func(stream *connection.Stream) {
		listener.Close()
		line := NewLine(stream, []byte("\n"), 64)
		line.SetDataHandler(func(data []byte) {
			require.NoError(t, line.SendLine(connection.PriorityDefault, append([]byte("> "), data...)))
		})
	})

	client := connection.NewStream(r, connection.Options{})
	line := NewLine(client, []byte("\n"), 64)
	var echoed []string
	line.SetDataHandler(func(data []byte) {
		echoed = append(echoed, string(data))
		if len(echoed) == 2 {
			require.NoError(t, line.Disconnect("done", connection.DisconnectRequested))
		}
	})
	line.SetConnectHandler(func() {
		require.NoError(t, line.Send(connection.PriorityDefault, []byte("hel"), []byte("lo\nwor"), []byte("ld\n")))
	})
	require.NoError(t, client.Connect("127.0.0.1", port))
	run(t, r)
	require.Equal(t, []string{"> hello", "> world"}, echoed)
}

func TestIdleTimeoutOverStream(t *testing.T) {
	r, listener, port := newLoopback(t)
	var (
		records  []disconnectRecord
		accepted time.Time
		elapsed  time.Duration
	)
	listener.SetAcceptHandler(func(stream *connection.Stream) {
		listener.Close()
		accepted = time.Now()
		timeout := NewTimeout(stream, r.Timers())
		timeout.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
			elapsed = time.Since(accepted)
			records = append(records, disconnectRecord{reason, kind})
		})
		timeout.SetDataHandler(func([]byte) {})
		timeout.SetIdleTimeout(50 * time.Millisecond)
	})

	client := connection.NewStream(r, connection.Options{})
	var clientKind connection.DisconnectKind
	client.SetDataHandler(func([]byte) {})
	client.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		clientKind = kind
	})
	require.NoError(t, client.Connect("127.0.0.1", port))
	run(t, r)
	require.Equal(t, []disconnectRecord{{"Time-out", connection.DisconnectError}}, records)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Equal(t, connection.DisconnectGraceful, clientKind)
}

func TestDuplexOverStreams(t *testing.T) {
	r, listener, port := newLoopback(t)
	var accepted []*connection.Stream
	var received []string
	listener.SetAcceptHandler(func(stream *connection.Stream) {
		accepted = append(accepted, stream)
		if len(accepted) < 2 {
			return
		}
		listener.Close()
		for _, server := range accepted {
			server := server
			server.SetDataHandler(func(data []byte) {
				received = append(received, string(data))
				require.NoError(t, server.Disconnect("server done", connection.DisconnectRequested))
			})
		}
	})

	reader := connection.NewStream(r, connection.Options{})
	writer := connection.NewStream(r, connection.Options{})
	duplex := NewDuplex(reader, writer)
	var (
		connects int
		records  []disconnectRecord
	)
	duplex.SetDataHandler(func([]byte) {})
	duplex.SetConnectHandler(func() {
		connects++
		require.NoError(t, duplex.Send(connection.PriorityDefault, []byte("via writer")))
		require.NoError(t, reader.Send(connection.PriorityDefault, []byte("via reader")))
	})
	duplex.SetDisconnectHandler(func(reason string, kind connection.DisconnectKind) {
		records = append(records, disconnectRecord{reason, kind})
	})
	require.NoError(t, reader.Connect("127.0.0.1", port))
	require.NoError(t, writer.Connect("127.0.0.1", port))
	require.Equal(t, connection.StateConnecting, duplex.State())
	run(t, r)
	require.Equal(t, 1, connects)
	require.ElementsMatch(t, []string{"via writer", "via reader"}, received)
	require.Len(t, records, 1)
	require.Equal(t, connection.StateDisconnected, duplex.State())
}
