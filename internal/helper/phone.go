package helper

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	validFormat = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	nonDigits   = regexp.MustCompile(`[^\d]`)
)

// FormatPhoneNumber normalizes a destination phone number into the bare
// digit form the channel expects: country code plus subscriber number,
// no punctuation. Numbers with a leading trunk zero get the default
// country code (DEFAULT_COUNTRY_CODE env, "55" when unset) prepended.
func FormatPhoneNumber(phone string) (string, error) {
	if !validFormat.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := nonDigits.ReplaceAllString(phone, "")

	if len(cleaned) < 9 {
		return "", fmt.Errorf("phone number too short")
	}

	countryCode := os.Getenv("DEFAULT_COUNTRY_CODE")
	if countryCode == "" {
		countryCode = "55"
	}

	// Local form 0xxxx -> replace the trunk zero with the country code.
	if strings.HasPrefix(cleaned, "0") {
		cleaned = countryCode + cleaned[1:]
	}

	if len(cleaned) < 11 || len(cleaned) > 15 {
		return "", fmt.Errorf("invalid phone number length")
	}

	return cleaned, nil
}

// ExtractPhoneFromJID strips the device and server suffix from a channel
// JID: "5511999999999:43@s.whatsapp.net" -> "5511999999999".
func ExtractPhoneFromJID(jid string) string {
	atSplit := strings.SplitN(jid, "@", 2)
	if len(atSplit) == 0 {
		return jid
	}
	beforeAt := atSplit[0]
	colonSplit := strings.SplitN(beforeAt, ":", 2)
	return colonSplit[0]
}
