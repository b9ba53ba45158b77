package normalize

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/sentra/siem/internal/event"
)

// Enricher adds best-effort reverse-DNS and GeoIP context to events. Every
// lookup failure leaves the fields untouched; enrichment never errors out.
type Enricher struct {
	geo      *geoip2.Reader
	resolver *net.Resolver
	logger   *slog.Logger
	timeout  time.Duration
}

// NewEnricher opens the GeoLite2 city database at dbPath. An empty or
// unreadable path disables GeoIP but keeps reverse DNS.
func NewEnricher(dbPath string, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enricher{
		resolver: net.DefaultResolver,
		logger:   logger.With("component", "enricher"),
		timeout:  2 * time.Second,
	}
	if dbPath != "" {
		reader, err := geoip2.Open(dbPath)
		if err != nil {
			e.logger.Warn("geoip database unavailable, continuing without it", "path", dbPath, "error", err)
		} else {
			e.geo = reader
		}
	}
	return e
}

// Close releases the GeoIP reader.
func (e *Enricher) Close() {
	if e.geo != nil {
		e.geo.Close()
	}
}

// Enrich fills the event raw document with geo and hostname context for the
// source address. Lookup failures leave the event unchanged.
func (e *Enricher) Enrich(ev *event.Event) {
	if ev.SourceIP == "" {
		return
	}
	if ev.Raw == nil {
		ev.Raw = map[string]interface{}{}
	}

	if host := e.reverseLookup(ev.SourceIP); host != "" {
		ev.Raw["source_hostname"] = host
	}
	if geo := e.geoLookup(ev.SourceIP); geo != nil {
		ev.Raw["source_geo"] = geo
	}
}

func (e *Enricher) reverseLookup(ip string) string {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	names, err := e.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return names[0]
}

func (e *Enricher) geoLookup(ip string) map[string]interface{} {
	if e.geo == nil {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil
	}
	city, err := e.geo.City(parsed)
	if err != nil {
		return nil
	}
	geo := map[string]interface{}{}
	if name := city.Country.Names["en"]; name != "" {
		geo["country_name"] = name
	}
	if len(city.Subdivisions) > 0 {
		if name := city.Subdivisions[0].Names["en"]; name != "" {
			geo["region_name"] = name
		}
	}
	if name := city.City.Names["en"]; name != "" {
		geo["city_name"] = name
	}
	if len(geo) == 0 {
		return nil
	}
	return geo
}
