package sanitizer

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// fallbackRegions are tried in order for numbers written without a country code.
var fallbackRegions = []string{
	"US",
	"GB",
}

// NormalizePhone formats a valid number as E.164. Anything that does not
// parse to a valid number is returned trimmed.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	for _, region := range fallbackRegions {
		parsed, err := phonenumbers.Parse(phone, region)
		if err != nil || !phonenumbers.IsValidNumber(parsed) {
			continue
		}
		return phonenumbers.Format(parsed, phonenumbers.E164)
	}
	return phone
}
