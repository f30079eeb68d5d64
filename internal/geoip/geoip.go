// Package geoip resolves visitor countries for engagement events.
package geoip

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP looks up countries in a MaxMind database, or in a JSON list of CIDR
// ranges when the file is not a MaxMind database.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []cidrCountry
}

type cidrCountry struct {
	net     *net.IPNet
	country string
}

// Init opens the database at path.
func Init(path string) (*GeoIP, error) {
	g := &GeoIP{}
	db, err := geoip2.Open(path)
	if err == nil {
		g.db = db
		return g, nil
	}

	data, jerr := os.ReadFile(path)
	if jerr != nil {
		return nil, err
	}
	fb, jerr := parseFallback(data)
	if jerr != nil {
		return nil, err
	}
	g.fallback = fb
	return g, nil
}

// FromJSON builds a GeoIP from a JSON list of {"net": "...", "country": "..."}.
func FromJSON(data []byte) (*GeoIP, error) {
	fb, err := parseFallback(data)
	if err != nil {
		return nil, err
	}
	return &GeoIP{fallback: fb}, nil
}

func parseFallback(data []byte) ([]cidrCountry, error) {
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	var out []cidrCountry
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			out = append(out, cidrCountry{net: n, country: e.Country})
		}
	}
	return out, nil
}

// Country returns the ISO country code for ip, or "" when unknown.
func (g *GeoIP) Country(ip net.IP) string {
	if g == nil || ip == nil {
		return ""
	}
	if g.db != nil {
		rec, err := g.db.Country(ip)
		if err == nil {
			return rec.Country.IsoCode
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// ClientIP returns the originating address of r, preferring the first
// X-Forwarded-For entry.
func ClientIP(r *http.Request) net.IP {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			fwd = fwd[:idx]
		}
		if ip := net.ParseIP(strings.TrimSpace(fwd)); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// Close releases the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
