package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairsched/internal/fixed"
)

func TestPriorityToWeightPositive(t *testing.T) {
	for p := MinPriority; p <= MaxPriority; p++ {
		require.True(t, PriorityToWeight(p).IsPositive(), "priority %d", p)
	}
}

func TestPriorityToWeightEndpoints(t *testing.T) {
	assert.Equal(t, fixed.FromRatio(1, NumPriorityLevels), PriorityToWeight(MinPriority))
	assert.Equal(t, fixed.One, PriorityToWeight(MaxPriority))
	assert.Equal(t, fixed.FromRatio(1, 2), PriorityToWeight(15))
}

func TestWeightPriorityRoundTrip(t *testing.T) {
	for p := MinPriority; p <= MaxPriority; p++ {
		assert.Equal(t, p, WeightToPriority(PriorityToWeight(p)), "priority %d", p)
	}
}

func TestWeightToPriorityMonotonic(t *testing.T) {
	prev := WeightToPriority(fixed.FromRatio(1, 1000))
	for n := int64(1); n <= 64; n++ {
		p := WeightToPriority(fixed.FromRatio(n, 64))
		require.GreaterOrEqual(t, p, prev, "weight %d/64", n)
		prev = p
	}
}

func TestWeightToPriorityClamps(t *testing.T) {
	assert.Equal(t, MaxPriority, WeightToPriority(fixed.FromInt(50)))
	assert.Equal(t, MinPriority, WeightToPriority(0))
}
