package connection

import (
	"context"
	"net"
	"net/netip"
	"time"

	E "github.com/sagernet/sing-reactor/common/exceptions"

	"github.com/miekg/dns"
)

// Resolver looks up the addresses of a host name. It runs off the reactor
// thread and must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// SystemResolver uses the Go resolver, net.DefaultResolver unless set.
type SystemResolver struct {
	Resolver *net.Resolver
}

func (r SystemResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	for index := range addrs {
		addrs[index] = addrs[index].Unmap()
	}
	return addrs, nil
}

const DefaultDNSTimeout = 5 * time.Second

// DNSResolver queries A and AAAA records from one server.
type DNSResolver struct {
	// Server is a host:port pair.
	Server  string
	Timeout time.Duration
	// Network is "udp" (default) or "tcp".
	Network string
}

func (r *DNSResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	client := &dns.Client{
		Net:     r.Network,
		Timeout: timeout,
	}
	var (
		addrs  []netip.Addr
		errors []error
	)
	for _, queryType := range []uint16{dns.TypeA, dns.TypeAAAA} {
		message := new(dns.Msg)
		message.SetQuestion(dns.Fqdn(host), queryType)
		message.RecursionDesired = true
		response, _, err := client.ExchangeContext(ctx, message, r.Server)
		if err != nil {
			errors = append(errors, E.Cause(err, "exchange ", dns.TypeToString[queryType]))
			continue
		}
		if response.Rcode != dns.RcodeSuccess {
			errors = append(errors, E.New(dns.TypeToString[queryType], ": ", dns.RcodeToString[response.Rcode]))
			continue
		}
		for _, answer := range response.Answer {
			switch record := answer.(type) {
			case *dns.A:
				if addr, ok := netip.AddrFromSlice(record.A); ok {
					addrs = append(addrs, addr.Unmap())
				}
			case *dns.AAAA:
				if addr, ok := netip.AddrFromSlice(record.AAAA); ok {
					addrs = append(addrs, addr)
				}
			}
		}
	}
	if len(addrs) == 0 {
		if err := E.Errors(errors...); err != nil {
			return nil, E.Cause(err, "lookup ", host)
		}
		return nil, E.New("lookup ", host, ": no records")
	}
	return addrs, nil
}
