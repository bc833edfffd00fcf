// Package rss retrieves feed documents and turns their items into entries.
package rss

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/textutil"
)

const (
	maxFeedBytes   = 10 << 20
	maxTitleRunes  = 512
	maxSummaryRune = 2000
)

// Fetcher downloads and parses feeds. It never stores anything.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// NewFetcherWithClient is used when the caller owns transport settings.
func NewFetcherWithClient(client *http.Client, userAgent string) *Fetcher {
	return &Fetcher{client: client, userAgent: userAgent}
}

// Fetch returns the entries of src in document order. Every failure is a
// *model.FetchError; an empty feed is not an error.
func (f *Fetcher) Fetch(ctx context.Context, src model.Source) ([]model.Entry, error) {
	feed, err := f.parse(ctx, src.URL)
	if err != nil {
		return nil, &model.FetchError{Source: src.URL, Err: err}
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, toEntry(item, src.URL))
	}
	return entries, nil
}

// Validate checks that url serves a parseable feed with at least one item.
func (f *Fetcher) Validate(ctx context.Context, url string) error {
	feed, err := f.parse(ctx, url)
	if err != nil {
		return &model.FetchError{Source: url, Err: err}
	}
	if len(feed.Items) == 0 {
		return &model.FetchError{Source: url, Err: errors.New("feed has no entries")}
	}
	return nil
}

func (f *Fetcher) parse(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// ApplyCutoff drops entries published strictly before cutoff. Entries with
// an unknown date are kept. A zero cutoff keeps everything.
func ApplyCutoff(entries []model.Entry, cutoff time.Time) ([]model.Entry, int) {
	if cutoff.IsZero() {
		return entries, 0
	}
	kept := make([]model.Entry, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.Published != nil && e.Published.Before(cutoff) {
			skipped++
			continue
		}
		kept = append(kept, e)
	}
	return kept, skipped
}

func toEntry(item *gofeed.Item, sourceURL string) model.Entry {
	title := textutil.CleanText(item.Title)
	if title == "" {
		title = model.UntitledTitle
	}
	title = textutil.Truncate(title, maxTitleRunes)

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}

	e := model.Entry{
		GUID:      entryGUID(item),
		Title:     title,
		Link:      strings.TrimSpace(item.Link),
		Summary:   textutil.Truncate(textutil.HTMLToText(item.Description), maxSummaryRune),
		BodyHTML:  body,
		BodyText:  textutil.HTMLToText(body),
		ImageURL:  imageURL(item),
		Author:    author(item),
		Published: published(item),
		SourceURL: sourceURL,
	}
	return e
}

// entryGUID prefers the feed-provided id, otherwise hashes link and title.
func entryGUID(item *gofeed.Item) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	h := sha256.Sum256([]byte(strings.TrimSpace(item.Link) + "\n" + strings.TrimSpace(item.Title)))
	return "sha256:" + hex.EncodeToString(h[:16])
}

func published(item *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case item.PublishedParsed != nil:
		t = item.PublishedParsed
	case item.UpdatedParsed != nil:
		t = item.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}

func imageURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if src := textutil.FirstImage(item.Description); src != "" {
		return src
	}
	return textutil.FirstImage(item.Content)
}

func author(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}
