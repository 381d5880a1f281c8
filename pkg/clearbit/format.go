package clearbit

import (
	"fmt"
	"strconv"
)

// FormatCompanySize buckets an employee count into a size band.
// Zero or negative counts return "".
func FormatCompanySize(employees int) string {
	switch {
	case employees <= 0:
		return ""
	case employees <= 10:
		return "1-10"
	case employees <= 50:
		return "11-50"
	case employees <= 200:
		return "51-200"
	case employees <= 500:
		return "201-500"
	case employees <= 1000:
		return "501-1000"
	case employees <= 5000:
		return "1001-5000"
	case employees <= 10000:
		return "5001-10000"
	default:
		return "10000+"
	}
}

// FormatRevenue renders an annual revenue figure as "$X.YB", "$X.YM",
// "$X.YK", or "$N" below one thousand.
func FormatRevenue(revenue float64) string {
	switch {
	case revenue >= 1e9:
		return fmt.Sprintf("$%.1fB", revenue/1e9)
	case revenue >= 1e6:
		return fmt.Sprintf("$%.1fM", revenue/1e6)
	case revenue >= 1e3:
		return fmt.Sprintf("$%.1fK", revenue/1e3)
	default:
		return "$" + strconv.FormatFloat(revenue, 'f', -1, 64)
	}
}

// SocialURL expands a profile handle into a full URL on base, for example
// "https://twitter.com/". An empty handle returns "".
func SocialURL(base, handle string) string {
	if handle == "" {
		return ""
	}
	return base + handle
}
