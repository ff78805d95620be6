package parser

import (
	"regexp"
	"strings"

	"github.com/moyedx3/figure-scrapper/internal/catalog"

	"github.com/PuerkitoBio/goquery"
)

// name-prefix tags are a secondary status signal, used when the listing
// markup itself carries no soldout marker
var preorderPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^\[예약(?:마감임박)?\]`),
	regexp.MustCompile(`^\[\d+년\s*\d+분기\s*입고예정\]`),
	regexp.MustCompile(`^\[\d+년\s*\d+월\s*입고예정\]`),
	regexp.MustCompile(`^\[예약판매\]`),
}

var arrivedPrefix = regexp.MustCompile(`^\[입고완료\]`)

// ParseStatusPrefix derives a status from a bracketed tag at the front of the
// display name and returns the status together with the name stripped of the
// tag. Names without a recognized tag are available.
//
//	"[예약] 상품명"              → preorder, "상품명"
//	"[26년 2분기 입고예정] 상품명" → preorder, "상품명"
//	"[입고완료][제조사] 상품명"    → available, "[제조사] 상품명"
func ParseStatusPrefix(name string) (catalog.Status, string) {
	status := catalog.StatusAvailable
	cleaned := strings.TrimSpace(name)

	for _, pattern := range preorderPrefixes {
		if pattern.MatchString(cleaned) {
			status = catalog.StatusPreorder
			cleaned = strings.TrimSpace(pattern.ReplaceAllString(cleaned, ""))
			break
		}
	}
	if arrivedPrefix.MatchString(cleaned) {
		status = catalog.StatusAvailable
		cleaned = strings.TrimSpace(arrivedPrefix.ReplaceAllString(cleaned, ""))
	}

	return status, cleaned
}

// detectSoldout checks a listing row for the catalog's soldout markers.
// The marker image is the primary UI signal and always wins over any
// name-prefix tag.
func detectSoldout(row *goquery.Selection, rules catalog.Rules) bool {
	for _, sel := range rules.SoldoutSelectors {
		if row.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
