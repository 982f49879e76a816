// Package similarity detects near-duplicate short texts with character
// n-gram Jaccard similarity.
package similarity

import (
	"strings"
	"unicode"
)

// Checker remembers accepted texts and rejects new ones that are too close
// to any of them. It is not safe for concurrent use.
type Checker struct {
	threshold float64
	ngramSize int
	accepted  []map[string]struct{}
}

// New creates a Checker. A text whose similarity to an accepted text is at
// least threshold is rejected; threshold <= 0 accepts everything.
func New(threshold float64, ngramSize int) *Checker {
	if ngramSize <= 0 {
		ngramSize = 3
	}
	return &Checker{threshold: threshold, ngramSize: ngramSize}
}

// normalize lowercases, removes punctuation, and collapses whitespace.
func normalize(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			sb.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

// Trigrams extracts all character n-grams from the text.
func (c *Checker) Trigrams(text string) map[string]struct{} {
	runes := []rune(normalize(text))
	set := make(map[string]struct{})
	for i := 0; i <= len(runes)-c.ngramSize; i++ {
		set[string(runes[i:i+c.ngramSize])] = struct{}{}
	}
	return set
}

// JaccardSimilarity computes |A intersection B| / |A union B|.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Similarity compares two texts directly.
func (c *Checker) Similarity(a, b string) float64 {
	return JaccardSimilarity(c.Trigrams(a), c.Trigrams(b))
}

// Add accepts text unless it is too similar to something accepted before.
func (c *Checker) Add(text string) bool {
	grams := c.Trigrams(text)
	if c.threshold > 0 {
		for _, existing := range c.accepted {
			if JaccardSimilarity(grams, existing) >= c.threshold {
				return false
			}
		}
	}
	c.accepted = append(c.accepted, grams)
	return true
}
