package main

import (
	"math"
	"slices"
	"time"
)

// latencySummary — задержки вызовов IncrementVote в миллисекундах.
type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

func summarizeLatencies(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := slices.Sorted(slices.Values(samples))

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return latencySummary{
		Min: millis(sorted[0]),
		Max: millis(sorted[len(sorted)-1]),
		Avg: millis(total / time.Duration(len(sorted))),
		P50: millis(nearestRank(sorted, 50)),
		P95: millis(nearestRank(sorted, 95)),
		P99: millis(nearestRank(sorted, 99)),
	}
}

// nearestRank — наименьшее значение, не меньше которого p% выборки.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
