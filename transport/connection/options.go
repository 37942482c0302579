package connection

import (
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultReadBufferSize = 4096
	DefaultResolveTimeout = 10 * time.Second

	// reads up to this size are copied into an exact-size slice; larger reads
	// hand over the read buffer instead.
	smallReadSize = 512
)

type KeepAliveOptions struct {
	Enabled  bool
	Idle     time.Duration
	Interval time.Duration
}

type Options struct {
	ReadBufferSize int
	KeepAlive      KeepAliveOptions
	Resolver       Resolver
	ResolveTimeout time.Duration
	// Shuffle randomizes resolved addresses before they are tried.
	Shuffle bool
	// BindAddress is the local address of datagram connections.
	BindAddress netip.AddrPort
	Logger      logrus.FieldLogger
}

func (o Options) normalize() Options {
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = DefaultResolveTimeout
	}
	if o.Resolver == nil {
		o.Resolver = SystemResolver{}
	}
	return o
}
