// Package pricing turns free-text price, rating and count strings scraped
// from listings into numbers. All functions are pure and lenient: malformed
// input degrades to zero instead of failing the whole record.
package pricing

import (
	"math"
	"strconv"
	"strings"
)

// maxPriceDigits keeps ParsePrice inside int64.
const maxPriceDigits = 18

// ParsePrice strips every non-digit character and parses the rest as a
// non-negative integer. Text without digits, or with more digits than fit
// an int64, yields 0.
//
//	"₩1,299,000" -> 1299000
//	"문의"        -> 0
func ParsePrice(text string) int64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if digits == "" || len(digits) > maxPriceDigits {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// DiscountRate returns round((original-current)/original*100) clamped to
// [0,100]. It is 0 when either price is not positive.
func DiscountRate(original, current int64) int {
	if original <= 0 || current <= 0 {
		return 0
	}
	rate := math.Round(float64(original-current) / float64(original) * 100)
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return int(rate)
}

// ParseRating extracts the first decimal number of text and clamps it to
// [0,5]. Both "4.5" and "4,5" are accepted. ok is false when no number
// is present.
func ParseRating(text string) (rating float64, ok bool) {
	num := firstNumber(text)
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(num, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return math.Max(0, math.Min(5, v)), true
}

// ParseCount parses review counters such as "(1,234)" or "리뷰 87개".
// Thousand separators are ignored; text without digits yields 0.
func ParseCount(text string) int {
	n := ParsePrice(text)
	if n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

// firstNumber returns the first run of digits, optionally followed by a
// single decimal separator and more digits.
func firstNumber(text string) string {
	start := strings.IndexFunc(text, isDigit)
	if start < 0 {
		return ""
	}
	end := start
	seenSep := false
	for end < len(text) {
		c := rune(text[end])
		switch {
		case isDigit(c):
			end++
		case (c == '.' || c == ',') && !seenSep && end+1 < len(text) && isDigit(rune(text[end+1])):
			seenSep = true
			end++
		default:
			return text[start:end]
		}
	}
	return text[start:end]
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// ParseAmount parses machine-readable decimal amounts such as the "price"
// property of structured data ("1299.00", 1299.5) and rounds to whole
// currency units. Text that is not a plain decimal falls back to ParsePrice.
func ParseAmount(text string) int64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return ParsePrice(t)
	}
	if v <= 0 || math.IsNaN(v) || v > math.MaxInt64/2 {
		return 0
	}
	return int64(math.Round(v))
}
