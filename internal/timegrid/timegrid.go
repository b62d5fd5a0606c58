// Package timegrid maps arbitrary timestamps onto a channel's discrete
// sampling grid so annotation boundaries always land on real sample points.
package timegrid

import (
	"math"
	"sort"
)

// displayPrecision is the decimal precision grid points are rounded to for
// stable persistence and display.
const displayPrecision = 3

// Grid generates the monotonically increasing sample grid for a channel,
// stepping from 0 to durationMs at intervalMs. Points are computed by index
// rather than by accumulating the interval, so the final point lands exactly
// on the duration when the duration is a whole number of intervals even for
// intervals that are not binary-exact. A non-positive interval or duration
// yields an empty grid.
func Grid(durationMs, intervalMs float64) []float64 {
	if durationMs <= 0 || intervalMs <= 0 {
		return nil
	}

	steps := int(math.Round(durationMs / intervalMs))
	// Round may land one step past the duration when it is not a whole
	// number of intervals; the grid must never extend beyond the channel.
	if excess := float64(steps)*intervalMs - durationMs; excess > intervalMs*1e-9 {
		steps--
	}

	points := make([]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		points = append(points, round(float64(i)*intervalMs))
	}
	return points
}

// Nearest returns the grid point nearest to target, ties broken toward the
// earlier point. The grid must be sorted ascending. The second return value
// is false for an empty grid.
func Nearest(target float64, grid []float64) (float64, bool) {
	if len(grid) == 0 {
		return 0, false
	}

	// first grid point >= target
	idx := sort.SearchFloat64s(grid, target)
	if idx == len(grid) {
		return round(grid[len(grid)-1]), true
	}
	if idx == 0 {
		return round(grid[0]), true
	}

	before := grid[idx-1]
	after := grid[idx]
	if target-before <= after-target {
		return round(before), true
	}
	return round(after), true
}

func round(v float64) float64 {
	scale := math.Pow10(displayPrecision)
	return math.Round(v*scale) / scale
}
