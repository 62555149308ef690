package analytics

import "net/netip"

// AnonymizeIP truncates an address before it is stored: IPv4 keeps its /24,
// IPv6 its /48. Anything unparsable becomes "".
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 24
	if addr.Is6() {
		bits = 48
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}
