package entities

import "strings"

// usStates maps state and district names to postal codes.
var usStates = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
	"district of columbia": "DC",
}

// NormalizeUsState turns a US state name into its postal code.
// Codes in any case are upper-cased; anything else is returned trimmed.
func NormalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := usStates[strings.ToLower(s)]; ok {
		return code
	}
	if up := strings.ToUpper(s); stateCodes[up] {
		return up
	}
	return s
}

var stateCodes = func() map[string]bool {
	m := make(map[string]bool, len(usStates))
	for _, code := range usStates {
		m[code] = true
	}
	return m
}()

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeToken lower-cases a free-form label and joins words with
// underscores: "Credit Card" becomes "credit_card".
func NormalizeToken(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
}

// claimStatusAliases maps status labels used by claim systems onto the
// stored lifecycle values.
var claimStatusAliases = map[string]string{
	"submitted": "filed",
	"open":      "filed",
	"new":       "filed",
	"in_review": "under_review",
	"review":    "under_review",
	"pending":   "under_review",
	"settled":   "approved",
	"paid":      "approved",
	"rejected":  "denied",
}

// NormalizeClaimStatus maps aliases like "Submitted" or "In Review" onto
// filed/under_review/approved/denied. Unknown values pass through.
func NormalizeClaimStatus(s string) string {
	tok := NormalizeToken(s)
	if mapped, ok := claimStatusAliases[tok]; ok {
		return mapped
	}
	return tok
}

// NormalizePolicyStatus maps "inactive" and "lapsed" onto expired.
func NormalizePolicyStatus(s string) string {
	switch tok := NormalizeToken(s); tok {
	case "inactive", "lapsed":
		return "expired"
	case "canceled":
		return "cancelled"
	default:
		return tok
	}
}
