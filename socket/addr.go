package socket

import (
	"net"

	"golang.org/x/sys/unix"
)

// Addr is an IPv4 socket address: the library's Non-goals exclude
// IPv6, matching the original source's binding to AF_INET only.
type Addr struct {
	IP   net.IP
	Port int
}

func (a *Addr) String() string {
	if a == nil {
		return "<nil>"
	}
	return (&net.UDPAddr{IP: a.IP, Port: a.Port}).String()
}

func resolveIPv4(host string) (net.IP, error) {
	if host == "" || host == "0.0.0.0" {
		return net.IPv4zero, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, &net.AddrError{Err: "no IPv4 address found", Addr: host}
}

func toSockaddrInet4(ip net.IP, port int) unix.SockaddrInet4 {
	var sa unix.SockaddrInet4
	sa.Port = port
	v4 := ip.To4()
	if v4 == nil {
		v4 = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], v4)
	return sa
}

func fromSockaddr(sa unix.Sockaddr) *Addr {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok || in4 == nil {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, in4.Addr[:])
	return &Addr{IP: ip, Port: in4.Port}
}
