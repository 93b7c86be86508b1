// Package geo resolves raw flow addresses into display identities. The
// store keeps every address in IPv6 form (IPv4 as ::ffff:a.b.c.d);
// private ranges classify as LAN without an external lookup, everything
// else consults the process-wide mmdb reader.
package geo

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Identity is the resolved display form of one address.
type Identity struct {
	IP       string `json:"ip"`
	HostName string `json:"hostname"`
	Country  string `json:"country"`
	ASName   string `json:"as_name"`
}

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
}

// Resolver wraps the geolocation databases. The readers are opened once
// at startup and are safe for concurrent lookups; a Resolver with no
// readers still classifies private ranges and falls back to "Unknown".
type Resolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

// New opens the mmdb files. Either path may be empty; missing databases
// degrade lookups instead of failing construction, but a path that
// exists and does not parse is an error.
func New(cityPath, asnPath string) (*Resolver, error) {
	r := &Resolver{}
	if cityPath != "" {
		reader, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("open city mmdb: %w", err)
		}
		r.city = reader
	}
	if asnPath != "" {
		reader, err := geoip2.Open(asnPath)
		if err != nil {
			if r.city != nil {
				r.city.Close()
			}
			return nil, fmt.Errorf("open asn mmdb: %w", err)
		}
		r.asn = reader
	}
	return r, nil
}

func (r *Resolver) Close() {
	if r.city != nil {
		r.city.Close()
	}
	if r.asn != nil {
		r.asn.Close()
	}
}

// Clean strips the IPv4-mapped-IPv6 prefix for classification and
// display. Addresses without the prefix pass through unchanged.
func Clean(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

// IsPrivate reports whether the cleaned address falls in a LAN range.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(Clean(ip))
	if err != nil {
		return false
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve produces the display identity of one address. knownName is the
// registry name when the address belongs to a registered host; it always
// wins over geolocation-derived names.
func (r *Resolver) Resolve(ip, knownName string) Identity {
	clean := Clean(ip)
	id := Identity{IP: clean, HostName: knownName}

	if IsPrivate(clean) {
		id.Country = "LAN"
		id.ASName = "Private Network"
		if id.HostName == "" {
			id.HostName = "Internal Device"
		}
		return id
	}

	country, org := r.lookup(clean)
	id.Country = country
	id.ASName = org
	if id.HostName == "" {
		if org != "" && org != "Unknown" {
			id.HostName = org
		} else {
			id.HostName = "Unknown Host"
		}
	}
	return id
}

func (r *Resolver) lookup(clean string) (country, org string) {
	country, org = "Unknown", "Unknown"
	addr := net.ParseIP(clean)
	if addr == nil {
		return country, org
	}
	if r.city != nil {
		if rec, err := r.city.City(addr); err == nil && rec != nil {
			if name := rec.Country.Names["en"]; name != "" {
				country = name
			} else if rec.Country.IsoCode != "" {
				country = rec.Country.IsoCode
			}
		}
	}
	if r.asn != nil {
		if rec, err := r.asn.ASN(addr); err == nil && rec != nil && rec.AutonomousSystemOrganization != "" {
			org = rec.AutonomousSystemOrganization
		}
	}
	return country, org
}
