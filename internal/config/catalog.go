package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/technews/internal/classify"
	"github.com/deusflow/technews/internal/model"
)

// Catalog is the static classification setup plus the seed sources.
//
//	classification: {title_weight: 3, body_weight: 1, min_score: 2, similarity_threshold: 0.9}
//	blacklist: ["股市", "stock market"]
//	categories:
//	  - name: AI
//	    color: "#6366f1"
//	    keywords: [openai, {term: llm, weight: 2}]
//	sources:
//	  - {name: OpenAI Blog, url: https://openai.com/blog/rss.xml, category: AI, trust: specialized}
type Catalog struct {
	Classification ClassificationSettings `yaml:"classification"`
	Blacklist      []string               `yaml:"blacklist"`
	Categories     []CategorySpec         `yaml:"categories"`
	Sources        []SourceSpec           `yaml:"sources"`
}

type ClassificationSettings struct {
	TitleWeight         float64 `yaml:"title_weight"`
	BodyWeight          float64 `yaml:"body_weight"`
	MinScore            float64 `yaml:"min_score"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MultiLabel          bool    `yaml:"multi_label"`
}

type CategorySpec struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Color       string        `yaml:"color"`
	Keywords    []KeywordSpec `yaml:"keywords"`
}

// KeywordSpec decodes either a bare term (weight 1) or {term, weight}.
type KeywordSpec struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

func (k *KeywordSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		k.Term = node.Value
		k.Weight = 1
		return nil
	}
	type plain KeywordSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Weight == 0 {
		p.Weight = 1
	}
	*k = KeywordSpec(p)
	return nil
}

type SourceSpec struct {
	Name        string           `yaml:"name"`
	URL         string           `yaml:"url"`
	Description string           `yaml:"description"`
	Category    string           `yaml:"category"`
	Trust       model.TrustLevel `yaml:"trust"`
	Active      *bool            `yaml:"active"`
}

func (s SourceSpec) IsActive() bool {
	return s.Active == nil || *s.Active
}

// LoadCatalog reads and validates the catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cat Catalog
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	cat.applyDefaults()
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return &cat, nil
}

func (c *Catalog) applyDefaults() {
	s := &c.Classification
	if s.TitleWeight == 0 {
		s.TitleWeight = 3
	}
	if s.BodyWeight == 0 {
		s.BodyWeight = 1
	}
	if s.MinScore == 0 {
		s.MinScore = 2
	}
	if s.SimilarityThreshold == 0 {
		s.SimilarityThreshold = 0.9
	}
}

// Validate runs once at startup so the classifier never has to re-check.
func (c *Catalog) Validate() error {
	s := c.Classification
	if s.TitleWeight <= 0 || s.BodyWeight <= 0 {
		return fmt.Errorf("classification weights must be positive")
	}
	if s.MinScore <= 0 {
		return fmt.Errorf("classification min_score must be positive")
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("classification similarity_threshold must be in (0, 1]")
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}

	names := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		key := strings.ToLower(strings.TrimSpace(cat.Name))
		if key == "" {
			return fmt.Errorf("category with empty name")
		}
		if names[key] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		names[key] = true

		if len(cat.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", cat.Name)
		}
		for _, kw := range cat.Keywords {
			if strings.TrimSpace(kw.Term) == "" {
				return fmt.Errorf("category %q has an empty keyword", cat.Name)
			}
			if kw.Weight <= 0 {
				return fmt.Errorf("category %q keyword %q must have a positive weight", cat.Name, kw.Term)
			}
		}
	}

	urls := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("source %q has no url", src.Name)
		}
		if urls[src.URL] {
			return fmt.Errorf("duplicate source url %s", src.URL)
		}
		urls[src.URL] = true

		if src.Category != "" && !names[strings.ToLower(src.Category)] {
			return fmt.Errorf("source %q references unknown category %q", src.Name, src.Category)
		}
		if src.Trust == model.TrustSpecialized && src.Category == "" {
			return fmt.Errorf("specialized source %q needs a category", src.Name)
		}
	}
	return nil
}

// Rules converts the catalog into the classifier's lookup structures.
func (c *Catalog) Rules() classify.Rules {
	rules := classify.Rules{
		TitleWeight:         c.Classification.TitleWeight,
		BodyWeight:          c.Classification.BodyWeight,
		MinScore:            c.Classification.MinScore,
		SimilarityThreshold: c.Classification.SimilarityThreshold,
		MultiLabel:          c.Classification.MultiLabel,
		Blacklist:           c.Blacklist,
	}
	for _, cat := range c.Categories {
		cr := classify.CategoryRule{Name: cat.Name}
		for _, kw := range cat.Keywords {
			cr.Keywords = append(cr.Keywords, classify.Keyword{Term: kw.Term, Weight: kw.Weight})
		}
		rules.Categories = append(rules.Categories, cr)
	}
	return rules
}

// SeedCategories returns the catalog categories as records for seeding.
func (c *Catalog) SeedCategories() []model.Category {
	out := make([]model.Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		color := cat.Color
		if color == "" {
			color = "#007bff"
		}
		out = append(out, model.Category{Name: cat.Name, Description: cat.Description, Color: color})
	}
	return out
}

// SeedSources returns the catalog sources with category names unresolved.
func (c *Catalog) SeedSources() []model.Source {
	out := make([]model.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		name := s.Name
		if name == "" {
			name = s.URL
		}
		out = append(out, model.Source{
			Name:        name,
			URL:         s.URL,
			Description: s.Description,
			Category:    s.Category,
			Trust:       s.Trust,
			Active:      s.IsActive(),
		})
	}
	return out
}
