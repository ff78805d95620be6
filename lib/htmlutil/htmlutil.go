package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DirectText returns the text of the immediate text-node children of the
// selection, skipping element children. Cafe24 listing anchors bury the
// visible product name in direct text nodes next to hidden spans.
func DirectText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		child := n.FirstChild
		for child != nil {
			if child.Type == html.TextNode {
				buffer.WriteString(child.Data)
			}
			child = child.NextSibling
		}
	}
	return CleanText(buffer.String())
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText strips non-printable runes, trims and collapses inner whitespace.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// AbsoluteURL resolves href against base, handling the protocol-relative
// `//cdn...` form Cafe24 uses for thumbnails.
func AbsoluteURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	link, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(link).String()
}
