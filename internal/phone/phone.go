// Package phone normalizes customer phone numbers to the MSISDN form the
// mobile-money gateway expects: international digits without a leading "+".
package phone

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid marks input that is not a valid mobile number for the region.
var ErrInvalid = errors.New("invalid phone number")

// Normalize parses raw as a number in region (for example "KE") and returns
// it as international digits, e.g. "0712345678" -> "254712345678".
func Normalize(raw, region string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.Wrap(ErrInvalid, "empty")
	}
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	// Gateways hand numbers back as bare international digits.
	code := strconv.Itoa(phonenumbers.GetCountryCodeForRegion(region))
	if !strings.HasPrefix(s, "+") && !strings.HasPrefix(s, "0") && strings.HasPrefix(s, code) && len(s) > len(code)+6 {
		s = "+" + s
	}

	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", errors.Wrapf(ErrInvalid, "%s", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.Wrapf(ErrInvalid, "%q", raw)
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

// Mask hides all but the last three digits, for logs and customer-facing
// messages.
func Mask(msisdn string) string {
	if len(msisdn) <= 3 {
		return strings.Repeat("*", len(msisdn))
	}
	return strings.Repeat("*", len(msisdn)-3) + msisdn[len(msisdn)-3:]
}
