package geoip

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver maps viewer addresses to a country and city. A Resolver without a
// database answers every lookup with empty strings.
type Resolver struct {
	db *maxminddb.Reader
}

type geoResult struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

func New(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{}, nil
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, geolocation disabled", "path", dbPath, "error", err)
		return &Resolver{}, nil
	}
	slog.Info("geoip: loaded database", "path", dbPath, "type", db.Metadata.DatabaseType)
	return &Resolver{db: db}, nil
}

// Enabled reports whether lookups can return anything.
func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

// Lookup accepts a bare IP or a host:port remote address. Private and
// loopback addresses are never looked up.
func (r *Resolver) Lookup(addr string) (country, city string) {
	if !r.Enabled() {
		return "", ""
	}
	ip, ok := parseAddr(addr)
	if !ok || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return "", ""
	}
	var result geoResult
	if err := r.db.Lookup(net.IP(ip.AsSlice()), &result); err != nil {
		slog.Debug("geoip: lookup failed", "ip", ip.String(), "error", err)
		return "", ""
	}
	return result.Country.ISOCode, result.City.Names["en"]
}

func (r *Resolver) Close() error {
	if r.Enabled() {
		return r.db.Close()
	}
	return nil
}

func parseAddr(addr string) (netip.Addr, bool) {
	if addr == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap.Addr().Unmap(), true
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}
