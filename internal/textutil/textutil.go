// Package textutil holds the small text normalizers shared by the fetcher,
// the extractor and the summarizer.
package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// CleanText decodes HTML entities and collapses all whitespace runs.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return CollapseSpace(html.UnescapeString(s))
}

// CollapseSpace trims s and joins whitespace runs with a single space. Use it
// on text that is already decoded, such as a parsed document's Text().
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// HTMLToText renders an HTML fragment as plain text. Block elements are
// separated so words from adjacent paragraphs do not run together.
func HTMLToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return CleanText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CleanText(fragment)
	}
	doc.Find("script, style, noscript").Remove()
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return CollapseSpace(doc.Text())
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// Truncate shortens s to at most maxRunes runes without splitting a rune.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// RuneLen is utf8.RuneCountInString, named for call-site readability.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
