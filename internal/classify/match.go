package classify

import (
	"regexp"
	"strings"
)

// term is one precompiled keyword. Short ASCII words match on word
// boundaries so "ai" does not fire inside "said"; everything else, including
// CJK terms and phrases, is a substring match on lowercased text.
type term struct {
	text   string
	weight float64
	re     *regexp.Regexp
}

func compileTerm(k string, weight float64) (term, bool) {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return term{}, false
	}
	t := term{text: k, weight: weight}
	if len(k) <= 3 && isASCIIWord(k) {
		t.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
	}
	return t, true
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// in expects lowered text.
func (t term) in(lowered string) bool {
	if t.re != nil {
		return t.re.MatchString(lowered)
	}
	return strings.Contains(lowered, t.text)
}

// firstMatch returns the first term found in any of the lowered texts.
func firstMatch(terms []term, lowered ...string) (string, bool) {
	for _, t := range terms {
		for _, text := range lowered {
			if t.in(text) {
				return t.text, true
			}
		}
	}
	return "", false
}
