package dates

import (
	"fmt"
	"time"
)

// Outlook mailbox settings report the user's zone as a Windows display
// name rather than an IANA identifier. This maps the common ones; the
// full registry lives in the Unicode CLDR windowsZones table.
var windowsZones = map[string]string{
	"Dateline Standard Time":         "Etc/GMT+12",
	"Hawaiian Standard Time":         "Pacific/Honolulu",
	"Alaskan Standard Time":          "America/Anchorage",
	"Pacific Standard Time":          "America/Los_Angeles",
	"US Mountain Standard Time":      "America/Phoenix",
	"Mountain Standard Time":         "America/Denver",
	"Central Standard Time":          "America/Chicago",
	"Central America Standard Time":  "America/Guatemala",
	"Eastern Standard Time":          "America/New_York",
	"US Eastern Standard Time":       "America/Indiana/Indianapolis",
	"Atlantic Standard Time":         "America/Halifax",
	"SA Pacific Standard Time":       "America/Bogota",
	"Argentina Standard Time":        "America/Argentina/Buenos_Aires",
	"E. South America Standard Time": "America/Sao_Paulo",
	"UTC":                            "UTC",
	"GMT Standard Time":              "Europe/London",
	"Greenwich Standard Time":        "Atlantic/Reykjavik",
	"W. Europe Standard Time":        "Europe/Berlin",
	"Central Europe Standard Time":   "Europe/Budapest",
	"Romance Standard Time":          "Europe/Paris",
	"Central European Standard Time": "Europe/Warsaw",
	"FLE Standard Time":              "Europe/Kiev",
	"GTB Standard Time":              "Europe/Bucharest",
	"Russian Standard Time":          "Europe/Moscow",
	"Turkey Standard Time":           "Europe/Istanbul",
	"Israel Standard Time":           "Asia/Jerusalem",
	"Arabian Standard Time":          "Asia/Dubai",
	"West Asia Standard Time":        "Asia/Tashkent",
	"India Standard Time":            "Asia/Kolkata",
	"SE Asia Standard Time":          "Asia/Bangkok",
	"China Standard Time":            "Asia/Shanghai",
	"Singapore Standard Time":        "Asia/Singapore",
	"Tokyo Standard Time":            "Asia/Tokyo",
	"Korea Standard Time":            "Asia/Seoul",
	"AUS Eastern Standard Time":      "Australia/Sydney",
	"W. Australia Standard Time":     "Australia/Perth",
	"New Zealand Standard Time":      "Pacific/Auckland",
	"South Africa Standard Time":     "Africa/Johannesburg",
	"Egypt Standard Time":            "Africa/Cairo",
	"Mexico Standard Time":           "America/Mexico_City",
	"Canada Central Standard Time":   "America/Regina",
	"Newfoundland Standard Time":     "America/St_Johns",
}

// ToIANA resolves a timezone name from Outlook to an IANA identifier.
// Names that already are IANA identifiers pass through unchanged.
func ToIANA(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty timezone name")
	}
	if iana, ok := windowsZones[name]; ok {
		return iana, nil
	}
	if _, err := time.LoadLocation(name); err == nil {
		return name, nil
	}
	return "", fmt.Errorf("unknown timezone %q", name)
}

// LoadLocation resolves a Windows or IANA timezone name to a *time.Location.
func LoadLocation(name string) (*time.Location, error) {
	iana, err := ToIANA(name)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(iana)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", iana, err)
	}
	return loc, nil
}
