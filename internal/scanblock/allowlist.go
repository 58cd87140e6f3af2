package scanblock

import (
	"net"
	"strings"
)

// allowList holds hosts that are never scored. Hosts match exactly as
// given; CIDR entries additionally match any address they contain.
type allowList struct {
	exact map[string]struct{}
	cidrs []*net.IPNet
}

func newAllowList(entries []string) (*allowList, error) {
	a := &allowList{exact: make(map[string]struct{}, len(entries))}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, err
			}
			a.cidrs = append(a.cidrs, ipNet)
			continue
		}
		a.exact[entry] = struct{}{}
	}
	return a, nil
}

func (a *allowList) Contains(host string) bool {
	if _, ok := a.exact[host]; ok {
		return true
	}
	if len(a.cidrs) == 0 {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range a.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
