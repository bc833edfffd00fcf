// Package model holds the records shared by the ingestion pipeline, the
// repository and the HTTP API.
package model

import (
	"fmt"
	"strings"
	"time"
)

// TrustLevel decides whether a source's entries must clear the relevance gate.
type TrustLevel int

const (
	// TrustBroad sources mix topics; entries must score against a category.
	TrustBroad TrustLevel = iota
	// TrustSpecialized sources are assigned their own category without scoring.
	TrustSpecialized
)

func (t TrustLevel) String() string {
	if t == TrustSpecialized {
		return "specialized"
	}
	return "broad"
}

// ParseTrustLevel accepts "specialized"/"trusted" and "broad" (or empty).
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "broad":
		return TrustBroad, nil
	case "specialized", "trusted":
		return TrustSpecialized, nil
	}
	return TrustBroad, fmt.Errorf("unknown trust level %q", s)
}

func (t TrustLevel) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TrustLevel) UnmarshalText(b []byte) error {
	v, err := ParseTrustLevel(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Source is a registered feed.
type Source struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Description string     `json:"description,omitempty"`
	CategoryID  int64      `json:"category_id,omitempty"`
	Category    string     `json:"category,omitempty"`
	Trust       TrustLevel `json:"trust"`
	Active      bool       `json:"active"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UntitledTitle stands in for a feed item that has no title.
const UntitledTitle = "Untitled"

// Entry is one parsed feed item that has not been persisted yet.
type Entry struct {
	GUID      string
	Title     string
	Link      string
	Summary   string // plain text of the feed description
	BodyHTML  string
	BodyText  string
	ImageURL  string
	Author    string
	Published *time.Time // nil when the feed date is missing or unparseable
	SourceURL string
}

// Content is a persisted, classified article.
type Content struct {
	ID           int64      `json:"id"`
	GUID         string     `json:"guid"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary,omitempty"`
	Summarized   bool       `json:"summarized"`
	BodyHTML     string     `json:"content_html,omitempty"`
	BodyText     string     `json:"content_text,omitempty"`
	Link         string     `json:"link"`
	ImageURL     string     `json:"image_url,omitempty"`
	Author       string     `json:"author,omitempty"`
	Published    *time.Time `json:"published_date,omitempty"`
	SourceURL    string     `json:"source_url"`
	SourceID     int64      `json:"source_id"`
	Categories   []Category `json:"categories"`
	IsRead       bool       `json:"is_read"`
	IsBookmarked bool       `json:"is_bookmarked"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SummaryText returns the text a summarizer should work from.
func (c Content) SummaryText() string {
	switch {
	case c.BodyText != "":
		return c.BodyText
	case c.Summary != "":
		return c.Summary
	}
	return c.Title
}

type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReadingHistory is appended every time content is marked read.
type ReadingHistory struct {
	ID        int64     `json:"id"`
	ContentID int64     `json:"content_id"`
	ReadAt    time.Time `json:"read_at"`
	Duration  int       `json:"read_duration"` // seconds
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ContentFilter narrows a content listing. Nil pointers mean "any".
type ContentFilter struct {
	CategoryID   *int64
	SourceID     *int64
	IsRead       *bool
	IsBookmarked *bool
	Search       string
	Page         int
	PageSize     int
}

// Normalize clamps paging to sane values.
func (f ContentFilter) Normalize() ContentFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f ContentFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type ContentPage struct {
	Items    []Content `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

type SourceStats struct {
	SourceID    int64      `json:"source_id"`
	Name        string     `json:"name"`
	Total       int        `json:"total_articles"`
	Unread      int        `json:"unread_articles"`
	LastFetched *time.Time `json:"last_fetched"`
}
