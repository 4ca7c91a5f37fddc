// Package frequency defines the word-frequency mapping shared by the crawl
// engine and the query layer, and the merge operation used to aggregate
// per-article counts.
package frequency

import (
	"math"
	"sort"
)

// Counts maps a normalised word to its number of occurrences. Mappings
// returned by the crawl engine and the article cache are shared and must be
// treated as read-only; use Clone before mutating.
type Counts map[string]int

// WordCount is a single (word, count) pair.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Merge returns a new mapping holding base[w] + other[w] for every word of
// either input. Neither input is modified.
func Merge(base, other Counts) Counts {
	merged := make(Counts, max(len(base), len(other)))
	MergeInto(merged, base)
	MergeInto(merged, other)
	return merged
}

// MergeInto adds every count of src into dst. Words whose resulting count is
// not positive are removed from dst.
func MergeInto(dst, src Counts) {
	for word, count := range src {
		sum := dst[word] + count
		if sum <= 0 {
			delete(dst, word)
			continue
		}
		dst[word] = sum
	}
}

// MergeAll folds parts into a single new mapping.
func MergeAll(parts ...Counts) Counts {
	merged := make(Counts)
	for _, part := range parts {
		MergeInto(merged, part)
	}
	return merged
}

// Clone returns an independent copy of c.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for word, count := range c {
		out[word] = count
	}
	return out
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, count := range c {
		total += count
	}
	return total
}

// Without returns a copy of c with the given words removed.
func (c Counts) Without(words []string) Counts {
	out := c.Clone()
	for _, w := range words {
		delete(out, w)
	}
	return out
}

// Sorted returns the pairs of c ordered by count descending, then by word
// ascending.
func (c Counts) Sorted() []WordCount {
	pairs := make([]WordCount, 0, len(c))
	for word, count := range c {
		pairs = append(pairs, WordCount{Word: word, Count: count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Word < pairs[j].Word
	})
	return pairs
}

// Percentages returns each word's share of the total in percent. When
// decimals is non-negative the shares are rounded to that many places. An
// empty or zero-total mapping yields an empty result.
func (c Counts) Percentages(decimals int) map[string]float64 {
	out := make(map[string]float64, len(c))
	total := c.Total()
	if total == 0 {
		return out
	}
	for word, count := range c {
		pct := float64(count) / float64(total) * 100
		if decimals >= 0 {
			pct = round(pct, decimals)
		}
		out[word] = pct
	}
	return out
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
