package akamai

import (
	"strconv"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/geoip"
)

// EventsToEC converts raw events to the Akamai.SIEM context entries, the
// standard IP context, and the rows of the readable table. When the event
// carries no geo country and geo is non-nil, the client IP is resolved
// locally instead.
func EventsToEC(events []map[string]interface{}, geo geoip.Lookuper) ([]map[string]interface{}, []map[string]interface{}, []map[string]interface{}) {
	eventsEC := make([]map[string]interface{}, 0, len(events))
	ipEC := make([]map[string]interface{}, 0, len(events))
	readable := make([]map[string]interface{}, 0, len(events))

	for _, event := range events {
		attack := section(event, "attackData")
		msg := section(event, "httpMessage")
		geoSection := section(event, "geo")

		country := cast.ToString(geoSection["country"])
		city := cast.ToString(geoSection["city"])
		clientIP := cast.ToString(attack["clientIP"])
		if country == "" && geo != nil && clientIP != "" {
			if loc, err := geo.Lookup(clientIP); err == nil {
				country = loc.CountryCode
				if city == "" {
					city = loc.City
				}
			}
		}

		eventsEC = append(eventsEC, map[string]interface{}{
			"AttackData": assign(map[string]interface{}{
				"ConfigID":      attack["configId"],
				"PolicyID":      attack["policyId"],
				"ClientIP":      attack["clientIP"],
				"Rules":         decodeField(attack, "rules"),
				"RuleMessages":  decodeField(attack, "ruleMessages"),
				"RuleTags":      decodeField(attack, "ruleTags"),
				"RuleData":      decodeField(attack, "ruleData"),
				"RuleSelectors": decodeField(attack, "ruleSelectors"),
				"RuleActions":   decodeField(attack, "ruleActions"),
			}),
			"HttpMessage": assign(map[string]interface{}{
				"RequestId":       msg["requestId"],
				"Start":           msg["start"],
				"Protocol":        msg["protocol"],
				"Method":          msg["method"],
				"Host":            msg["host"],
				"Port":            msg["port"],
				"Path":            msg["path"],
				"RequestHeaders":  msg["requestHeaders"],
				"Status":          msg["status"],
				"Bytes":           msg["bytes"],
				"ResponseHeaders": msg["responseHeaders"],
			}),
			"Geo": assign(map[string]interface{}{
				"Continent":  geoSection["continent"],
				"Country":    country,
				"City":       city,
				"RegionCode": geoSection["regionCode"],
				"Asn":        geoSection["asn"],
			}),
		})

		ipEC = append(ipEC, assign(map[string]interface{}{
			"Address": attack["clientIP"],
			"ASN":     geoSection["asn"],
			"Geo":     map[string]interface{}{"Country": country},
		}))

		occurred, _ := DateFormatConverter("epoch", startOf(event))
		readable = append(readable, assign(map[string]interface{}{
			"Attacking IP":  attack["clientIP"],
			"Config ID":     attack["configId"],
			"Policy ID":     attack["policyId"],
			"Rules":         decodeField(attack, "rules"),
			"Rule messages": decodeField(attack, "ruleMessages"),
			"Rule actions":  decodeField(attack, "ruleActions"),
			"Date occured":  occurred,
			"Location":      map[string]interface{}{"Country": country, "City": city},
		}))
	}

	return eventsEC, ipEC, readable
}

// prepareForPush decodes the encoded members of an event in place and sets
// _time from the request start. An unparsable start leaves _time to the sink.
func prepareForPush(event map[string]interface{}) {
	if start, err := strconv.ParseInt(startOf(event), 10, 64); err == nil {
		event["_time"] = time.Unix(start, 0).UTC().Format(time.RFC3339)
	}

	attack := section(event, "attackData")
	for _, key := range []string{"rules", "ruleMessages", "ruleTags", "ruleData", "ruleSelectors", "ruleActions", "ruleVersions"} {
		attack[key] = decodeField(attack, key)
	}
	event["attackData"] = attack

	msg := section(event, "httpMessage")
	msg["requestHeaders"] = DecodeURLHeaders(cast.ToString(msg["requestHeaders"]))
	msg["responseHeaders"] = DecodeURLHeaders(cast.ToString(msg["responseHeaders"]))
	event["httpMessage"] = msg
}
