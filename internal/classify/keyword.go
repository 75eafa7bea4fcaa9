package classify

import (
	"context"
	"regexp"
	"strings"
)

// KeywordCategorizer scores each label by keyword hits. It is pure: the same
// text always yields the same label.
type KeywordCategorizer struct {
	tax      Taxonomy
	matchers [][]matcher
}

var _ Categorizer = (*KeywordCategorizer)(nil)

// matcher counts one keyword. Phrases and long words are plain substrings;
// short tokens need word boundaries so "ai" does not match "said".
type matcher struct {
	word string
	re   *regexp.Regexp
}

func (m matcher) count(lower string) int {
	if m.re != nil {
		return len(m.re.FindAllStringIndex(lower, -1))
	}
	return strings.Count(lower, m.word)
}

func NewKeywordCategorizer(tax Taxonomy) *KeywordCategorizer {
	k := &KeywordCategorizer{tax: tax, matchers: make([][]matcher, len(tax.Labels))}
	for i, l := range tax.Labels {
		for _, kw := range l.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			m := matcher{word: kw}
			if !strings.Contains(kw, " ") && len(kw) <= 3 {
				m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			}
			k.matchers[i] = append(k.matchers[i], m)
		}
	}
	return k
}

func (k *KeywordCategorizer) Categorize(_ context.Context, text string) (string, error) {
	return k.Score(text), nil
}

// Score returns the label with the highest non-zero keyword count, the first
// such label on ties, or the taxonomy default when nothing matched.
func (k *KeywordCategorizer) Score(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := -1, 0
	for i, ms := range k.matchers {
		score := 0
		for _, m := range ms {
			score += m.count(lower)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return k.tax.Default
	}
	return k.tax.Labels[best].Name
}
