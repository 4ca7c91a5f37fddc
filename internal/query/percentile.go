package query

import "github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"

// FilterPercentile keeps the most frequent words whose running total stays
// below percentile percent of the overall count. Words are visited by count
// descending, ties by word ascending, and the walk stops before the word
// whose running sum first reaches the threshold. A percentile of 0 keeps
// nothing; a percentile of 100 drops at least the last word.
func FilterPercentile(counts frequency.Counts, percentile float64) frequency.Counts {
	out := frequency.Counts{}
	threshold := float64(counts.Total()) * percentile / 100
	cumulative := 0
	for _, wc := range counts.Sorted() {
		cumulative += wc.Count
		if float64(cumulative) >= threshold {
			break
		}
		out[wc.Word] = wc.Count
	}
	return out
}
