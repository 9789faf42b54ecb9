// Package phone implements the phone-number heuristics used to correlate
// inbound WhatsApp traffic with stored records. The transport does not
// guarantee a durable correlation key: sender identifiers arrive in varying
// shapes ("5511987654321@c.us", "+55 (11) 98765-4321", anonymized routing
// ids), so matching works on canonical digit strings plus a chain of
// progressively looser suffix strategies.
package phone

import "strings"

// minSuffixDigits is the minimum shared length for a suffix match. Anything
// shorter collides too easily across distinct subscribers.
const minSuffixDigits = 8

// Normalize reduces a free-form phone identifier to its canonical digit
// string. All non-digit characters are stripped (including the "@c.us" /
// "@s.whatsapp.net" routing suffixes). When the result looks like a domestic
// number (>= 10 digits) and does not already carry defaultCC, the country
// code is prefixed.
func Normalize(raw, defaultCC string) string {
	digits := Digits(raw)
	if defaultCC != "" && len(digits) >= 10 && !strings.HasPrefix(digits, defaultCC) {
		digits = defaultCC + digits
	}
	return digits
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripCountryCode removes a leading country code, but only when enough
// digits remain to still identify a subscriber.
func StripCountryCode(digits, cc string) string {
	if cc == "" || !strings.HasPrefix(digits, cc) {
		return digits
	}
	rest := digits[len(cc):]
	if len(rest) < minSuffixDigits {
		return digits
	}
	return rest
}

// Match reports whether two normalized digit strings identify the same
// subscriber, and which strategy decided it. Strategies run in order from
// strict to loose:
//
//	exact:  identical digit strings
//	suffix: one is a suffix (>= 8 digits) of the other
//	last10: the final 10 digits agree
//	last8:  the final 8 digits agree
//
// The whole chain is retried once more on country-code-stripped variants
// (strategy names gain a "_nocc" suffix). The first hit wins.
func Match(a, b, cc string) (strategy string, ok bool) {
	if s, ok := matchOnce(a, b); ok {
		return s, true
	}
	as, bs := StripCountryCode(a, cc), StripCountryCode(b, cc)
	if as == a && bs == b {
		return "", false
	}
	if s, ok := matchOnce(as, bs); ok {
		return s + "_nocc", true
	}
	return "", false
}

func matchOnce(a, b string) (string, bool) {
	if a == "" || b == "" {
		return "", false
	}
	if a == b {
		return "exact", true
	}
	if suffixOf(a, b) || suffixOf(b, a) {
		return "suffix", true
	}
	if lastN(a, b, 10) {
		return "last10", true
	}
	if lastN(a, b, 8) {
		return "last8", true
	}
	return "", false
}

// suffixOf reports whether short is a suffix of long with enough digits to
// be meaningful.
func suffixOf(long, short string) bool {
	return len(short) >= minSuffixDigits && len(long) > len(short) && strings.HasSuffix(long, short)
}

// lastN reports whether the final n digits of both strings agree.
func lastN(a, b string, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	return a[len(a)-n:] == b[len(b)-n:]
}
