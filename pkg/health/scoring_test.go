package health

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio_ZeroDenominator(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(5, 0))
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 50.0, Ratio(1, 2))
}

func TestRatioDeduction(t *testing.T) {
	s := Scoring{Weight: 0.5, MaxScore: 10}
	assert.Equal(t, 0.0, RatioDeduction(30, 30, s))
	assert.Equal(t, 0.0, RatioDeduction(10, 30, s))
	assert.Equal(t, 5.0, RatioDeduction(40, 30, s))
	assert.Equal(t, 10.0, RatioDeduction(100, 30, s))
}

func TestRowWeighted(t *testing.T) {
	s := Scoring{Weight: 2, MaxScore: 5}
	assert.Equal(t, 0.0, RowWeighted(0, s))
	assert.Equal(t, 4.0, RowWeighted(2, s))
	assert.Equal(t, 5.0, RowWeighted(3, s))
}

func TestBinary(t *testing.T) {
	assert.Equal(t, 0.0, Binary(false, Scoring{Weight: 3, MaxScore: 5}))
	assert.Equal(t, 3.0, Binary(true, Scoring{Weight: 3, MaxScore: 5}))
	assert.Equal(t, 2.0, Binary(true, Scoring{Weight: 3, MaxScore: 2}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 5))
	assert.Equal(t, 5.0, Clamp(7, 5))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 5))
	assert.Equal(t, 2.5, Clamp(2.5, 5))
}

func TestRowWeighted_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		s := Scoring{Weight: rng.Float64() * 10, MaxScore: rng.Float64() * 50}
		n := rng.Intn(200)
		got := RowWeighted(n, s)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, s.MaxScore)
		assert.InDelta(t, math.Min(s.MaxScore, float64(n)*s.Weight), got, 1e-9)
	}
}

func TestAggregate_RandomDeductions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		var (
			results []Result
			sum     float64
		)
		for j := rng.Intn(30); j > 0; j-- {
			d := rng.Float64() * 20
			sum += d
			results = append(results, Result{RuleID: "R", Deduction: d})
		}
		report := Aggregate(results)
		assert.InDelta(t, math.Max(0, 100-sum), report.TotalScore, 1e-9)
		assert.GreaterOrEqual(t, report.TotalScore, 0.0)
	}
}
