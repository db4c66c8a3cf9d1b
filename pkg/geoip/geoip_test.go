package geoip

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open("/nonexistent/GeoLite2-City.mmdb")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	var l Lookuper = Static{"8.8.8.8": {IP: "8.8.8.8", CountryCode: "US"}}

	loc, err := l.Lookup("8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "US", loc.CountryCode)

	_, err = l.Lookup("1.1.1.1")
	assert.Error(t, err)
}

func TestLocationCacheBounded(t *testing.T) {
	c := newLocationCache(2)

	c.set("10.0.0.1", &Location{IP: "10.0.0.1"})
	c.set("10.0.0.2", &Location{IP: "10.0.0.2"})
	c.set("10.0.0.1", &Location{IP: "10.0.0.1", City: "Seoul"})
	assert.Equal(t, 2, c.size())

	c.set("10.0.0.3", &Location{IP: "10.0.0.3"})
	assert.Equal(t, 2, c.size())
	assert.Nil(t, c.get("10.0.0.2"))
	assert.Equal(t, "Seoul", c.get("10.0.0.1").City)
	assert.NotNil(t, c.get("10.0.0.3"))

	for n := 0; n < 100; n++ {
		c.set(fmt.Sprintf("10.1.0.%d", n), &Location{})
	}
	assert.Equal(t, 2, c.size())
}
