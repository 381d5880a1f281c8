package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var asnPrefix = regexp.MustCompile(`^AS\d+\s+`)

// consumerMarkers flag ISP names that belong to home or mobile connections.
var consumerMarkers = []string{"residential", "mobile"}

// carrierTokens are words that mark a network operator's own name.
var carrierTokens = map[string]bool{
	"cable": true, "telecom": true, "telecommunications": true, "communications": true,
	"broadband": true, "wireless": true, "cellular": true, "mobile": true,
	"residential": true, "dsl": true, "fiber": true, "fibre": true,
	"comcast": true, "verizon": true, "at&t": true, "vodafone": true,
	"telefonica": true, "telstra": true,
}

// ipdata ASN types that describe the operator, not the visitor.
var carrierASNTypes = map[string]bool{"isp": true, "hosting": true}

// LikelyBusiness reports whether an ISP/org pair looks like a company's own
// network rather than a consumer connection. It rejects consumer ISPs, a
// missing org, a carrier-named org and an org that merely repeats the ISP.
func LikelyBusiness(isp, org string) bool {
	if strings.TrimSpace(org) == "" || LikelyCarrier(StripASN(org)) {
		return false
	}
	foldedISP := fold(isp)
	for _, m := range consumerMarkers {
		if strings.Contains(foldedISP, m) {
			return false
		}
	}
	return fold(strings.TrimSpace(org)) != fold(strings.TrimSpace(isp))
}

// LikelyCarrier reports whether name reads like a telecom or consumer ISP.
// Sources that expose only the network operator's name must pass it here.
func LikelyCarrier(name string) bool {
	words := strings.FieldsFunc(fold(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	for _, w := range words {
		if carrierTokens[w] {
			return true
		}
	}
	return false
}

// fold case-folds s. Casers carry state, so each call builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// StripASN removes a leading autonomous-system tag such as "AS15169 ".
func StripASN(org string) string {
	return asnPrefix.ReplaceAllString(strings.TrimSpace(org), "")
}

// joinLocation renders "city, country", or whichever half is present.
func joinLocation(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}
