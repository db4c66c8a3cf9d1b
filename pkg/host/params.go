package host

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/httpclient"
)

// Rate limit parameters shared by every vendor client.
const (
	ParamMaxRequestsPerSecond = "max_requests_per_second"
	ParamMaxBurst             = "max_burst"
)

// Params holds the configuration of one integration instance.
type Params map[string]interface{}

// String returns a parameter as a trimmed string.
func (p Params) String(key string) string {
	return strings.TrimSpace(cast.ToString(p[key]))
}

// StringDefault returns a parameter or def when unset.
func (p Params) StringDefault(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

// Bool returns a boolean parameter, false when unset or unparsable.
func (p Params) Bool(key string) bool {
	if _, ok := p[key]; !ok {
		return false
	}
	b, err := ArgToBool(p[key])
	return err == nil && b
}

// Int returns an integer parameter or def.
func (p Params) Int(key string, def int) int {
	if _, ok := p[key]; !ok {
		return def
	}
	n, err := ArgToInt(p[key])
	if err != nil {
		return def
	}
	return n
}

// URL returns a base URL parameter without trailing slashes.
func (p Params) URL(key string) string {
	return strings.TrimRight(p.String(key), "/")
}

// Credentials is the platform's credentials parameter type.
type Credentials struct {
	Identifier string
	Password   string
}

// Credentials reads a credentials parameter, which the platform stores as
// {identifier, password}.
func (p Params) Credentials(key string) Credentials {
	m, err := cast.ToStringMapE(p[key])
	if err != nil {
		return Credentials{}
	}
	return Credentials{
		Identifier: strings.TrimSpace(cast.ToString(m["identifier"])),
		Password:   cast.ToString(m["password"]),
	}
}

// CredentialOr prefers the password of a credentials parameter and falls
// back to a plain parameter.
func (p Params) CredentialOr(credKey, plainKey string) string {
	if c := p.Credentials(credKey); c.Password != "" {
		return c.Password
	}
	return p.String(plainKey)
}

// RateLimit reads the outgoing request limit of an instance. Unset or
// non-positive values disable throttling.
func (p Params) RateLimit() httpclient.Limit {
	rps := cast.ToFloat64(p.String(ParamMaxRequestsPerSecond))
	if rps <= 0 {
		return httpclient.Limit{}
	}
	return httpclient.Limit{RequestsPerSecond: rps, BurstSize: p.Int(ParamMaxBurst, 1)}
}
