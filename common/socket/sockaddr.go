//go:build unix

package socket

import (
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// Family returns the address family a socket needs to reach addr.
func Family(addr netip.Addr) int {
	if addr.Unmap().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func toSockaddr(family int, addr netip.AddrPort) unix.Sockaddr {
	ip := addr.Addr()
	if family == unix.AF_INET {
		return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}
	}
	sockaddr := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		if iif, err := net.InterfaceByName(zone); err == nil {
			sockaddr.ZoneId = uint32(iif.Index)
		}
	}
	return sockaddr
}

func fromSockaddr(sockaddr unix.Sockaddr) netip.AddrPort {
	switch sa := sockaddr.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if iif, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr = addr.WithZone(iif.Name)
			}
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}
