package sched

import "fairsched/internal/fixed"

// Priority levels form a fixed range; weight is the priority expressed
// as a fraction of the full range. The +1 in the mapping keeps every
// enqueuable task's weight strictly positive, including priority 0.
const (
	MinPriority       = 0
	MaxPriority       = 31
	NumPriorityLevels = 32
)

// MinWeight is the weight of a MinPriority task, the floor all
// entitlement math is normalized against.
var MinWeight = PriorityToWeight(MinPriority)

// PriorityToWeight maps a priority level to its scheduling weight:
// (priority+1)/NumPriorityLevels as a fixed-point ratio.
func PriorityToWeight(priority int) fixed.Ratio {
	return fixed.FromRatio(int64(priority)+1, NumPriorityLevels)
}

// WeightToPriority inverts PriorityToWeight, rounding to the nearest
// level and clamping into the valid range. The round trip is lossy but
// monotonic: a strictly higher weight never maps below a lower one.
func WeightToPriority(weight fixed.Ratio) int {
	p := weight.Mul(fixed.FromInt(NumPriorityLevels)).Round() - 1
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return int(p)
}
