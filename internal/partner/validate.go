package partner

import (
	"regexp"
	"strings"
)

var (
	digitsPattern = regexp.MustCompile(`\d+`)
	codePattern   = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)
	namePattern   = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s]{2,50}$`)
)

// NormalizePhone collapses a free-form phone into +<digits>, mapping the
// Russian local 8XXXXXXXXXX form to 7XXXXXXXXXX.
func NormalizePhone(raw string) string {
	digits := strings.Join(digitsPattern.FindAllString(raw, -1), "")
	if strings.HasPrefix(digits, "8") && len(digits) == 11 {
		digits = "7" + digits[1:]
	}
	if digits != "" {
		digits = "+" + digits
	}
	return digits
}

func IsValidPhone(raw string) bool {
	digits := strings.Join(digitsPattern.FindAllString(raw, -1), "")
	return len(digits) >= 10 && len(digits) <= 15
}

func NormalizeCode(value string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(value)), " ", "_")
}

func IsValidCode(value string) bool {
	normalized := NormalizeCode(value)
	return normalized != "" && codePattern.MatchString(normalized)
}

func IsValidName(value string) bool {
	return namePattern.MatchString(strings.TrimSpace(value))
}

// PhoneVariants returns the formats a portal may have stored a number in.
// CRM phone filters match the stored string verbatim, so lookup probes each
// variant in turn.
func PhoneVariants(phone string) []string {
	normalized := strings.TrimPrefix(NormalizePhone(phone), "+")
	if len(normalized) != 11 {
		if normalized == "" {
			return nil
		}
		return []string{"+" + normalized, normalized}
	}

	country := normalized[:1]
	code := normalized[1:4]
	part1 := normalized[4:7]
	part2 := normalized[7:9]
	part3 := normalized[9:11]
	local := normalized[1:]

	return []string{
		"+" + normalized,
		"8" + local,
		normalized,
		local,
		"+" + country + " " + code + " " + part1 + " " + part2 + " " + part3,
		"8 (" + code + ") " + part1 + "-" + part2 + "-" + part3,
		country + " (" + code + ") " + part1 + "-" + part2 + "-" + part3,
		"(" + code + ") " + part1 + "-" + part2 + "-" + part3,
	}
}
