// SPDX-License-Identifier: MIT
package engine

import (
	"math"
	"sync/atomic"
)

// Gate is a peak noise gate over 32-bit samples. A threshold of 0 disables
// it. Gate is safe for concurrent use: the threshold may be changed while
// the capture callback reads it.
type Gate struct {
	threshold atomic.Int32 // Absolute amplitude threshold (0-2147483647).
}

// NewGate returns a gate at threshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(int32(threshold * float64(math.MaxInt32)))
}

// Threshold returns the current threshold in [0, 1].
func (g *Gate) Threshold() float64 {
	return float64(g.threshold.Load()) / float64(math.MaxInt32)
}

// Open reports whether buffer holds a sample louder than the threshold.
// It does not allocate and runs on the capture callback.
func (g *Gate) Open(buffer []int32) bool {
	threshold := g.threshold.Load()
	if threshold == 0 {
		return true
	}
	var maxAmplitude int32
	for _, sample := range buffer {
		// Get absolute value without branching.
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask

		// Update max using math instead of branching.
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude > threshold
}
