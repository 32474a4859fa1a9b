package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcIncidence(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		got := CalcIncidence(100, 200000)
		require.NotNil(t, got)
		assert.InDelta(t, 50.0, *got, 1e-9)
	})

	t.Run("zero population is absent not zero", func(t *testing.T) {
		assert.Nil(t, CalcIncidence(5, 0))
	})

	t.Run("negative population is absent", func(t *testing.T) {
		assert.Nil(t, CalcIncidence(5, -1))
	})

	t.Run("zero cases is a real zero", func(t *testing.T) {
		got := CalcIncidence(0, 100000)
		require.NotNil(t, got)
		assert.Equal(t, 0.0, *got)
	})
}

func TestTrendPct(t *testing.T) {
	t.Run("decline", func(t *testing.T) {
		got := TrendPct(Float(40.0), Float(50.0))
		require.NotNil(t, got)
		assert.InDelta(t, -20.0, Round(*got, 1), 1e-9)
	})

	t.Run("growth", func(t *testing.T) {
		got := TrendPct(Float(75.0), Float(50.0))
		require.NotNil(t, got)
		assert.InDelta(t, 50.0, *got, 1e-9)
	})

	t.Run("missing latest", func(t *testing.T) {
		assert.Nil(t, TrendPct(nil, Float(50.0)))
	})

	t.Run("missing previous", func(t *testing.T) {
		assert.Nil(t, TrendPct(Float(40.0), nil))
	})

	t.Run("zero previous", func(t *testing.T) {
		assert.Nil(t, TrendPct(Float(40.0), Float(0.0)))
	})
}

func TestRound(t *testing.T) {
	assert.Equal(t, 45.68, Round(45.6789, 2))
	assert.Equal(t, -20.0, Round(-20.04, 1))
	assert.Equal(t, 46.0, Round(45.5, 0))
	assert.Nil(t, RoundPtr(nil, 2))
	assert.Equal(t, 1.2, *RoundPtr(Float(1.249), 1))
}

func TestSummaryRange(t *testing.T) {
	t.Run("min and max over finite values", func(t *testing.T) {
		got := SummaryRange([]*float64{Float(3.0), nil, Float(-1.5), Float(12.25)})
		assert.Equal(t, MinMax{Min: -1.5, Max: 12.25}, got)
	})

	t.Run("single value", func(t *testing.T) {
		got := SummaryRange([]*float64{Float(7.0)})
		assert.Equal(t, MinMax{Min: 7.0, Max: 7.0}, got)
	})

	t.Run("neutral default when empty", func(t *testing.T) {
		assert.Equal(t, MinMax{Min: 0.0, Max: 1.0}, SummaryRange(nil))
		assert.Equal(t, MinMax{Min: 0.0, Max: 1.0}, SummaryRange([]*float64{nil, nil}))
	})

	t.Run("non-finite values ignored", func(t *testing.T) {
		got := SummaryRange([]*float64{Float(math.NaN()), Float(math.Inf(1)), Float(2.0)})
		assert.Equal(t, MinMax{Min: 2.0, Max: 2.0}, got)
	})
}
