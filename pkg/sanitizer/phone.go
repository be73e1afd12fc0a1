package sanitizer

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "PK"

// fallbackRegions are tried when a number is not valid in the default region.
var fallbackRegions = []string{"AE", "SA", "GB", "US"}

// NormalizePhone returns phone in E.164 or "" when it is not a valid number.
// Local numbers are read as Pakistani.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	regions := append([]string{DefaultRegion}, fallbackRegions...)
	for _, region := range regions {
		parsed, err := phonenumbers.Parse(phone, region)
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			continue
		}
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return ""
}
