package health

// Clamp bounds a deduction to [0, maxScore].
func Clamp(deduction, maxScore float64) float64 {
	if deduction < 0 || deduction != deduction { // NaN
		return 0
	}
	if deduction > maxScore {
		return maxScore
	}
	return deduction
}

// RowWeighted returns min(max_score, n * weight).
func RowWeighted(n int, s Scoring) float64 {
	return Clamp(float64(n)*s.Weight, s.MaxScore)
}

// Ratio returns numerator/denominator as a percentage. A zero denominator yields 0.
func Ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator * 100
}

// RatioDeduction returns 0 when ratio <= threshold, else min(max_score, (ratio-threshold) * weight).
func RatioDeduction(ratio, threshold float64, s Scoring) float64 {
	if ratio <= threshold {
		return 0
	}
	return Clamp((ratio-threshold)*s.Weight, s.MaxScore)
}

// Binary returns min(max_score, weight) when hit, else 0.
func Binary(hit bool, s Scoring) float64 {
	if !hit {
		return 0
	}
	return Clamp(s.Weight, s.MaxScore)
}
