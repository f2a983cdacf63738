package session

import (
	"fmt"
	"strings"
)

// DefaultUserServer is the domain suffix of canonical WhatsApp user
// addresses.
const DefaultUserServer = "s.whatsapp.net"

// DefaultCountryCode replaces a leading "0" in local phone numbers when no
// country code is configured.
const DefaultCountryCode = "62"

// NormalizeAddress canonicalizes a destination phone address:
// non-digits are stripped, a leading "0" is replaced with the country
// code, and the user-server suffix is appended. An address that already
// carries an "@" is returned unchanged, which makes the function
// idempotent.
func NormalizeAddress(raw string, countryCode string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.Contains(raw, "@") {
		return raw, nil
	}
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	num := digits.String()
	if num == "" {
		return "", fmt.Errorf("address %q contains no digits", raw)
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if strings.HasPrefix(num, "0") {
		num = countryCode + num[1:]
	}
	return num + "@" + DefaultUserServer, nil
}
