// Package geoip resolves IP addresses to locations with a MaxMind city
// database.
package geoip

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a lookup.
type Location struct {
	IP          string  `json:"ip"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
}

// Lookuper resolves an IP address.
type Lookuper interface {
	Lookup(ip string) (*Location, error)
}

// DefaultCacheSize bounds the number of memoized lookups of a Reader.
const DefaultCacheSize = 10000

// Reader looks addresses up in a city database and memoizes recent results.
type Reader struct {
	db    *geoip2.Reader
	cache *locationCache
}

// Open opens a GeoLite2/GeoIP2 city database.
func Open(path string) (*Reader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open city database: %w", err)
	}
	return &Reader{db: db, cache: newLocationCache(DefaultCacheSize)}, nil
}

// Lookup resolves ip.
func (r *Reader) Lookup(ip string) (*Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ip)
	}

	if loc := r.cache.get(ip); loc != nil {
		return loc, nil
	}

	city, err := r.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("city lookup failed for %s: %w", ip, err)
	}

	loc := &Location{
		IP:          ip,
		Country:     city.Country.Names["en"],
		CountryCode: city.Country.IsoCode,
		City:        city.City.Names["en"],
		Latitude:    city.Location.Latitude,
		Longitude:   city.Location.Longitude,
		Timezone:    city.Location.TimeZone,
	}
	if len(city.Subdivisions) > 0 {
		loc.Region = city.Subdivisions[0].Names["en"]
	}

	r.cache.set(ip, loc)
	return loc, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// locationCache is a size-bounded cache; the oldest entry is evicted when
// it is full.
type locationCache struct {
	items   map[string]*cacheItem
	maxSize int
	seq     uint64
	mu      sync.Mutex
}

type cacheItem struct {
	loc   *Location
	added uint64
}

func newLocationCache(maxSize int) *locationCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &locationCache{items: make(map[string]*cacheItem), maxSize: maxSize}
}

func (c *locationCache) get(ip string) *Location {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[ip]; ok {
		return item.loc
	}
	return nil
}

func (c *locationCache) set(ip string, loc *Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[ip]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.seq++
	c.items[ip] = &cacheItem{loc: loc, added: c.seq}
}

func (c *locationCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *locationCache) evictOldest() {
	var oldestKey string
	var oldest uint64

	for key, item := range c.items {
		if oldestKey == "" || item.added < oldest {
			oldestKey = key
			oldest = item.added
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

// Static is a fixed lookup table.
type Static map[string]*Location

// Lookup returns the table entry for ip.
func (s Static) Lookup(ip string) (*Location, error) {
	if loc, ok := s[ip]; ok {
		return loc, nil
	}
	return nil, fmt.Errorf("no location for %s", ip)
}
