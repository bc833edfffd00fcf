// Package classify decides whether a parsed feed entry is kept and which
// category it belongs to. Stages run in a fixed order: identity and title
// dedup, then the noise blacklist, then weighted keyword relevance.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deusflow/technews/internal/model"
)

type Keyword struct {
	Term   string
	Weight float64
}

type CategoryRule struct {
	Name     string
	Keywords []Keyword
}

// Rules is the validated, static classification table. Category order is
// the tie-break order.
type Rules struct {
	TitleWeight         float64
	BodyWeight          float64
	MinScore            float64
	SimilarityThreshold float64
	MultiLabel          bool
	Blacklist           []string
	Categories          []CategoryRule
}

// Index answers identity lookups against persisted content.
type Index interface {
	FindByGUID(ctx context.Context, guid string) (*model.Content, error)
}

type Verdict int

const (
	Reject Verdict = iota
	Accept
	// Update means the identifier is already stored; mutable fields may be
	// refreshed but the entry is not classified again.
	Update
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Update:
		return "update"
	}
	return "reject"
}

type Decision struct {
	Verdict    Verdict
	Category   string   // primary category on Accept
	Extra      []string // additional categories when multi-label is on
	Score      float64
	ExistingID int64 // content id on Update
	Rejection  *model.Rejection
}

type category struct {
	name  string
	terms []term
}

type Engine struct {
	rules      Rules
	blacklist  []term
	categories []category
}

func NewEngine(r Rules) (*Engine, error) {
	if len(r.Categories) == 0 {
		return nil, errors.New("classify: no categories")
	}
	if r.MinScore <= 0 || r.TitleWeight <= 0 || r.BodyWeight <= 0 {
		return nil, errors.New("classify: weights and min score must be positive")
	}
	if r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		return nil, errors.New("classify: similarity threshold must be in (0, 1]")
	}

	e := &Engine{rules: r}
	for _, b := range r.Blacklist {
		if t, ok := compileTerm(b, 1); ok {
			e.blacklist = append(e.blacklist, t)
		}
	}
	seen := make(map[string]bool)
	for _, c := range r.Categories {
		key := strings.ToLower(c.Name)
		if seen[key] {
			return nil, fmt.Errorf("classify: duplicate category %q", c.Name)
		}
		seen[key] = true

		cat := category{name: c.Name}
		for _, k := range c.Keywords {
			if t, ok := compileTerm(k.Term, k.Weight); ok {
				cat.terms = append(cat.terms, t)
			}
		}
		if len(cat.terms) == 0 {
			return nil, fmt.Errorf("classify: category %q has no keywords", c.Name)
		}
		e.categories = append(e.categories, cat)
	}
	return e, nil
}

// NewTitleSet returns a title set using the engine's similarity threshold.
func (e *Engine) NewTitleSet(titles ...string) *TitleSet {
	return NewTitleSet(e.rules.SimilarityThreshold, titles...)
}

// Classify runs the pipeline for one entry. Rejections are returned in the
// Decision; err is only set when the index lookup fails.
func (e *Engine) Classify(ctx context.Context, idx Index, titles *TitleSet, src model.Source, entry model.Entry) (Decision, error) {
	existing, err := idx.FindByGUID(ctx, entry.GUID)
	switch {
	case err == nil && existing != nil:
		return Decision{Verdict: Update, ExistingID: existing.ID}, nil
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return Decision{}, &model.PersistenceError{Op: "find by guid", Err: err}
	}

	if titles != nil {
		if m, dup := titles.Match(entry.Title); dup {
			return reject(model.ReasonDuplicate, "similar to "+quoteShort(m)), nil
		}
	}

	title := strings.ToLower(entry.Title)
	body := strings.ToLower(entry.BodyText)
	if body == "" {
		body = strings.ToLower(entry.Summary)
	}

	if hit, ok := firstMatch(e.blacklist, title, body); ok {
		return reject(model.ReasonBlacklisted, hit), nil
	}

	d := e.score(title, body, src)
	if d.Verdict == Reject {
		return d, nil
	}

	if titles != nil {
		if m, ok := titles.Claim(entry.Title); !ok {
			return reject(model.ReasonDuplicate, "similar to "+quoteShort(m)), nil
		}
	}
	return d, nil
}

// score implements the relevance stage. Specialized sources bypass the
// minimum score and keep their own category as primary.
func (e *Engine) score(title, body string, src model.Source) Decision {
	scores := make([]float64, len(e.categories))
	best := -1
	for i, c := range e.categories {
		for _, t := range c.terms {
			if t.in(title) {
				scores[i] += t.weight * e.rules.TitleWeight
			}
			if t.in(body) {
				scores[i] += t.weight * e.rules.BodyWeight
			}
		}
		// strict > keeps the earliest declared category on ties
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}

	trusted := src.Trust == model.TrustSpecialized && src.Category != ""

	var d Decision
	switch {
	case trusted:
		d = Decision{Verdict: Accept, Category: src.Category, Score: e.scoreOf(scores, src.Category)}
	case scores[best] >= e.rules.MinScore:
		d = Decision{Verdict: Accept, Category: e.categories[best].name, Score: scores[best]}
	default:
		return reject(model.ReasonOffTopic, fmt.Sprintf("best score %.1f below %.1f", scores[best], e.rules.MinScore))
	}

	if e.rules.MultiLabel {
		for i, c := range e.categories {
			if scores[i] >= e.rules.MinScore && !strings.EqualFold(c.name, d.Category) {
				d.Extra = append(d.Extra, c.name)
			}
		}
	}
	return d
}

func (e *Engine) scoreOf(scores []float64, name string) float64 {
	for i, c := range e.categories {
		if strings.EqualFold(c.name, name) {
			return scores[i]
		}
	}
	return 0
}

func reject(reason model.RejectReason, detail string) Decision {
	return Decision{Verdict: Reject, Rejection: &model.Rejection{Reason: reason, Detail: detail}}
}

func quoteShort(s string) string {
	r := []rune(s)
	if len(r) > 60 {
		s = string(r[:60]) + "..."
	}
	return fmt.Sprintf("%q", s)
}
