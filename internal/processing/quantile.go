package processing

import (
	"slices"
)

// quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. values need not be sorted. Empty input yields 0.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sortedQuantile(sorted, q)
}

func sortedQuantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// iqrBounds returns the Tukey fences Q1-1.5*IQR and Q3+1.5*IQR.
func iqrBounds(values []float64) (lower, upper float64) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	q1 := sortedQuantile(sorted, 0.25)
	q3 := sortedQuantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr
}
