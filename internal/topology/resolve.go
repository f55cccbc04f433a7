package topology

import (
	"fmt"
	"net"
)

// lookupHostIP resolves a hostname at configuration-load time. A
// package variable so tests can stub DNS.
var lookupHostIP = resolveHostIP

func resolveHostIP(name string, ipv6 bool) (string, error) {
	ips, err := net.LookupIP(name)
	if err != nil {
		return "", err
	}
	if ipv6 {
		// Mirrors `dig +short AAAA | tail -1`.
		var last net.IP
		for _, ip := range ips {
			if ip.To4() == nil {
				last = ip
			}
		}
		if last != nil {
			return last.String(), nil
		}
		return "", fmt.Errorf("no AAAA record for %s", name)
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return "", fmt.Errorf("no A record for %s", name)
}
