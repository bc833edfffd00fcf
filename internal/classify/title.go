package classify

import (
	"strings"
	"sync"
	"unicode"

	"github.com/deusflow/technews/internal/model"
)

// NormalizeTitle lowercases, drops punctuation and collapses spaces.
// "OpenAI 发布新模型！" and "openai  发布新模型" normalize to the same key.
func NormalizeTitle(title string) string {
	title = strings.ToLower(title)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, title)
	return strings.Join(strings.Fields(stripped), " ")
}

// titleKey is the dedup key of title. Untitled entries get no key, so they
// never collide with each other.
func titleKey(title string) string {
	if strings.TrimSpace(title) == model.UntitledTitle {
		return ""
	}
	return NormalizeTitle(title)
}

type bigrams map[string]int

// shingle counts rune bigrams of a normalized title with spaces removed, so
// scripts written without spaces compare the same way as Latin text.
func shingle(norm string) (bigrams, int) {
	runes := []rune(strings.ReplaceAll(norm, " ", ""))
	if len(runes) < 2 {
		if len(runes) == 1 {
			return bigrams{string(runes): 1}, 1
		}
		return bigrams{}, 0
	}
	out := make(bigrams, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out, len(runes) - 1
}

// Similarity is the Dice coefficient over rune bigrams of two normalized titles.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ga, na := shingle(a)
	gb, nb := shingle(b)
	return dice(ga, na, gb, nb)
}

func dice(ga bigrams, na int, gb bigrams, nb int) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	if len(ga) > len(gb) {
		ga, gb = gb, ga
	}
	shared := 0
	for g, ca := range ga {
		if cb, ok := gb[g]; ok {
			shared += min(ca, cb)
		}
	}
	return 2 * float64(shared) / float64(na+nb)
}

type knownTitle struct {
	norm  string
	grams bigrams
	n     int
}

// TitleSet holds normalized titles of recent content for near-duplicate
// detection. Safe for concurrent use across sources of one cycle.
type TitleSet struct {
	mu        sync.RWMutex
	threshold float64
	exact     map[string]struct{}
	titles    []knownTitle
}

func NewTitleSet(threshold float64, titles ...string) *TitleSet {
	s := &TitleSet{threshold: threshold, exact: make(map[string]struct{}, len(titles))}
	for _, t := range titles {
		s.add(titleKey(t))
	}
	return s
}

func (s *TitleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.titles)
}

// Match returns the known title the given one is a near duplicate of.
func (s *TitleSet) Match(title string) (string, bool) {
	norm := titleKey(title)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.match(norm)
}

// Claim records title unless a near duplicate is already known. It reports
// false and the matching title when another writer got there first.
func (s *TitleSet) Claim(title string) (string, bool) {
	norm := titleKey(title)
	if norm == "" {
		return "", true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, dup := s.match(norm); dup {
		return m, false
	}
	s.add(norm)
	return "", true
}

func (s *TitleSet) match(norm string) (string, bool) {
	if norm == "" {
		return "", false
	}
	if _, ok := s.exact[norm]; ok {
		return norm, true
	}
	g, n := shingle(norm)
	for _, kt := range s.titles {
		if dice(g, n, kt.grams, kt.n) >= s.threshold {
			return kt.norm, true
		}
	}
	return "", false
}

func (s *TitleSet) add(norm string) {
	if norm == "" {
		return
	}
	if _, ok := s.exact[norm]; ok {
		return
	}
	g, n := shingle(norm)
	s.exact[norm] = struct{}{}
	s.titles = append(s.titles, knownTitle{norm: norm, grams: g, n: n})
}
