// Package validate holds the arithmetic and format checks PII detectors use
// to confirm candidate matches before emitting them. Validators only adjust
// confidence: they return false on any malformed input and never panic or
// return an error.
package validate

// LuhnCheck reports whether s passes the mod-10 checksum used by payment card
// numbers: doubling every second digit right to left, subtracting 9 when a
// doubled digit exceeds 9, and requiring the digit sum to divide by 10.
// s must be digits only — callers strip separators first. Any other
// character, an empty string, or a single digit fails the check.
func LuhnCheck(s string) bool {
	if len(s) < 2 {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// FixedLengthDigits reports whether s consists only of ASCII digits and its
// length lies within [minLen, maxLen] inclusive. Routing and account numbers
// use it as a plausibility gate. Full MICR routing-number checksum rules are
// deliberately not implemented here.
func FixedLengthDigits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
