// Package scraper backfills thin feed entries with text pulled from the
// article page itself.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/textutil"
)

const maxPageBytes = 5 << 20

// selectors are tried in order when no dominant text block is found.
var selectors = []string{
	"article p",
	".article p",
	".article-body p",
	".content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	".text p",
	"p",
}

var junk = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, .advertisement, .ads, .share, .social, .newsletter, .cookie"

type Extractor struct {
	client    *http.Client
	userAgent string
	minChars  int
}

func NewExtractor(timeout time.Duration, userAgent string, minChars int) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		minChars:  minChars,
	}
}

// NeedsBackfill reports whether the entry's body is below the threshold.
func (x *Extractor) NeedsBackfill(e model.Entry) bool {
	return textutil.RuneLen(e.BodyText) < x.minChars
}

// Backfill replaces a thin body with extracted page text. On any failure the
// entry is returned unchanged together with an *model.ExtractionError.
func (x *Extractor) Backfill(ctx context.Context, e model.Entry) (model.Entry, error) {
	if e.Link == "" {
		return e, &model.ExtractionError{Link: e.Link, Err: fmt.Errorf("entry has no link")}
	}
	text, err := x.Extract(ctx, e.Link)
	if err != nil {
		return e, err
	}
	if textutil.RuneLen(text) <= textutil.RuneLen(e.BodyText) {
		return e, nil
	}
	e.BodyText = text
	return e, nil
}

// Extract fetches link and returns its main readable text.
func (x *Extractor) Extract(ctx context.Context, link string) (string, error) {
	page, err := x.download(ctx, link)
	if err != nil {
		return "", &model.ExtractionError{Link: link, Err: err}
	}

	pageURL, _ := url.Parse(link)
	if article, err := readability.FromReader(bytes.NewReader(page), pageURL); err == nil {
		if text := textutil.CollapseSpace(article.TextContent); text != "" {
			return text, nil
		}
	}

	text, err := extractFromHTML(page)
	if err != nil {
		return "", &model.ExtractionError{Link: link, Err: err}
	}
	return text, nil
}

func (x *Extractor) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if x.userAgent != "" {
		req.Header.Set("User-Agent", x.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// extractFromHTML strips page chrome and returns the largest contiguous
// block of paragraphs, falling back to a selector cascade.
func extractFromHTML(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}
	doc.Find(junk).Remove()

	if text := largestBlock(doc); text != "" {
		return text, nil
	}

	for _, sel := range selectors {
		var paragraphs []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := textutil.CollapseSpace(s.Text()); len(t) > 10 {
				paragraphs = append(paragraphs, t)
			}
		})
		if len(paragraphs) > 0 {
			return cleanContent(strings.Join(paragraphs, "\n\n")), nil
		}
	}

	if body := textutil.CollapseSpace(doc.Find("body").Text()); body != "" {
		return body, nil
	}
	return "", fmt.Errorf("can't get content")
}

// largestBlock scores every element by the text of its direct <p> children.
func largestBlock(doc *goquery.Document) string {
	var best []string
	bestLen := 0
	doc.Find("p").Parent().Each(func(_ int, parent *goquery.Selection) {
		var paragraphs []string
		total := 0
		parent.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
			t := textutil.CollapseSpace(p.Text())
			if len(t) <= 10 {
				return
			}
			paragraphs = append(paragraphs, t)
			total += len(t)
		})
		if total > bestLen {
			best, bestLen = paragraphs, total
		}
	})
	return cleanContent(strings.Join(best, "\n\n"))
}

// boilerplateRunes caps the length of a line cleanContent may drop. Longer
// lines are article paragraphs even when they mention cookies.
const boilerplateRunes = 120

// cleanContent drops short boilerplate lines that survive selector matching.
func cleanContent(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBoilerplate(strings.ToLower(strings.TrimSpace(line))) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isBoilerplate(l string) bool {
	if textutil.RuneLen(l) >= boilerplateRunes {
		return false
	}
	return strings.HasPrefix(l, "read more") ||
		strings.HasPrefix(l, "subscribe") ||
		strings.HasPrefix(l, "advertisement") ||
		strings.Contains(l, "all rights reserved") ||
		strings.Contains(l, "cookie")
}
