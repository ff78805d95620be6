package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonDigit = regexp.MustCompile(`[^\d]`)

// prices above this are treated as scrape garbage, not real listings
const maxPlausiblePrice = 100_000_000

// ParsePrice parses decorated Korean price text like "198,000원" into the
// integer amount in won. A string with no digits, a zero amount or an absurd
// amount is a parse failure, never a zero-price result.
func ParsePrice(text string) (int64, error) {
	cleaned := nonDigit.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in price text %q", text)
	}
	price, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if price <= 0 || price > maxPlausiblePrice {
		return 0, fmt.Errorf("implausible price %d from %q", price, text)
	}
	return price, nil
}

// ParseDataPrice parses the Cafe24 data-price attribute, which is either
// "^price" or "^consumer_price^sale_price". The last segment is the price
// actually charged.
func ParseDataPrice(attr string) (int64, error) {
	var last string
	for _, part := range strings.Split(attr, "^") {
		if part != "" {
			last = part
		}
	}
	if last == "" {
		return 0, fmt.Errorf("empty data-price attribute %q", attr)
	}
	return ParsePrice(last)
}
