package rules

import (
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// Built-in patterns are anchored and restricted to the regex subset that Go, PostgreSQL
// and SQL Server agree on: no backreferences, no lookaround, [0-9] instead of \d.
var builtinPatterns = []struct {
	name        string
	pattern     string
	description string
}{
	{
		name:        "ip_v4",
		pattern:     `^(25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])(\.(25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])){3}$`,
		description: "IPv4 address in dotted-quad notation",
	},
	{
		name:        "ip_v6",
		pattern:     `^(([0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}|([0-9a-fA-F]{1,4}:){1,7}:|([0-9a-fA-F]{1,4}:){1,6}:[0-9a-fA-F]{1,4}|::([0-9a-fA-F]{1,4}:){0,5}[0-9a-fA-F]{1,4}|::)$`,
		description: "IPv6 address (full or compressed form)",
	},
	{
		name:        "email",
		pattern:     `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
		description: "Email address",
	},
	{
		name:        "url",
		pattern:     `^(https?|ftp)://[^\s/$.?#].[^\s]*$`,
		description: "URL with http, https or ftp scheme",
	},
	{
		name:        "fqdn",
		pattern:     `^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}$`,
		description: "Fully qualified domain name",
	},
	{
		name:        "mac",
		pattern:     `^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`,
		description: "MAC address",
	},
	{
		name:        "iso_date",
		pattern:     `^[0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`,
		description: "ISO 8601 calendar date (YYYY-MM-DD)",
	},
	{
		name:        "credit_card_number",
		pattern:     `^(4[0-9]{12}([0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(011|5[0-9]{2})[0-9]{12})$`,
		description: "Visa, Mastercard, American Express or Discover card number",
	},
	{
		name:        "us_phone_number",
		pattern:     `^(\+?1[ .-]?)?\(?[2-9][0-9]{2}\)?[ .-]?[0-9]{3}[ .-]?[0-9]{4}$`,
		description: "US phone number",
	},
	{
		name:        "us_ssn",
		pattern:     `^[0-9]{3}-[0-9]{2}-[0-9]{4}$`,
		description: "US social security number",
	},
	{
		name:        "uuid",
		pattern:     `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
		description: "UUID in canonical textual form",
	},
}

var builtinRanges = []struct {
	name        string
	min, max    float64
	integral    bool
	description string
}{
	{name: "latitude", min: -90, max: 90, description: "Latitude in decimal degrees"},
	{name: "longitude", min: -180, max: 180, description: "Longitude in decimal degrees"},
	{name: "port_number", min: 0, max: 65535, integral: true, description: "TCP/UDP port number"},
}

// BuiltinRules returns the rules shipped with the scanner, in registration order.
func BuiltinRules() []models.Rule {
	out := make([]models.Rule, 0, len(builtinPatterns)+len(builtinRanges))
	for _, p := range builtinPatterns {
		r, err := models.NewPatternRule(p.name, models.DataTypeString, p.pattern, p.description)
		if err != nil {
			panic(err)
		}
		r.Builtin = true
		out = append(out, r)
	}
	for _, rg := range builtinRanges {
		r, err := NewRangeRule(rg.name, rg.min, rg.max, rg.integral, rg.description)
		if err != nil {
			panic(err)
		}
		r.Builtin = true
		out = append(out, r)
	}
	return out
}
