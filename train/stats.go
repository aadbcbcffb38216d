// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EvalStats are the diagnostics of the final output of one evaluation episode
type EvalStats struct {
	MeanAbs   float64 `desc:"mean of |y - t| over classes"`
	MedianAbs float64 `desc:"median of |y - t| over classes"`
	MaxAbs    float64 `desc:"max of |y - t| over classes"`
	Corr      float64 `desc:"correlation of y and t -- NaN when either is constant"`
	SignCorr  float64 `desc:"correlation of sign(y) and sign(t) -- NaN when either is constant"`
}

// Compute computes the stats for output y and target t
func (es *EvalStats) Compute(y, t []float32) {
	n := len(y)
	yd := make([]float64, n)
	td := make([]float64, n)
	ad := make([]float64, n)
	for i := range y {
		yd[i] = float64(y[i])
		td[i] = float64(t[i])
	}
	floats.SubTo(ad, yd, td)
	for i, v := range ad {
		ad[i] = math.Abs(v)
	}
	es.MeanAbs = stat.Mean(ad, nil)
	es.MaxAbs = floats.Max(ad)
	es.MedianAbs = median(ad)
	es.Corr = stat.Correlation(td, yd, nil)
	for i := range yd {
		yd[i] = sign(yd[i])
		td[i] = sign(td[i])
	}
	es.SignCorr = stat.Correlation(td, yd, nil)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// median returns the median of vals, averaging the middle two for even
// lengths.  vals is sorted in place.
func median(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return 0.5 * (vals[n/2-1] + vals[n/2])
}

// LossAvg keeps the per-iteration losses needed for the checkpoint report
type LossAvg struct {
	Sum     float64   `desc:"sum of losses since the last checkpoint"`
	N       int       `desc:"number of losses since the last checkpoint"`
	Prev    float64   `desc:"average loss of the previous checkpoint interval, NaN before the first"`
	Recent  []float64 `desc:"ring buffer of the most recent losses"`
	NRecent int       `desc:"total number of losses added to Recent"`
}

// NRecentLosses is the number of most recent losses averaged at each checkpoint
const NRecentLosses = 100

// Init resets all state
func (la *LossAvg) Init() {
	la.Sum = 0
	la.N = 0
	la.Prev = math.NaN()
	la.Recent = make([]float64, NRecentLosses)
	la.NRecent = 0
}

// Add records the loss of one iteration
func (la *LossAvg) Add(loss float64) {
	la.Sum += loss
	la.N++
	la.Recent[la.NRecent%NRecentLosses] = loss
	la.NRecent++
}

// Avg returns the average loss since the last checkpoint
func (la *LossAvg) Avg() float64 {
	if la.N == 0 {
		return math.NaN()
	}
	return la.Sum / float64(la.N)
}

// AvgRecent returns the average of the last (up to) NRecentLosses losses
func (la *LossAvg) AvgRecent() float64 {
	n := la.NRecent
	if n > NRecentLosses {
		n = NRecentLosses
	}
	if n == 0 {
		return math.NaN()
	}
	return stat.Mean(la.Recent[:n], nil)
}

// Checkpoint closes the current interval: its average becomes Prev
func (la *LossAvg) Checkpoint() {
	la.Prev = la.Avg()
	la.Sum = 0
	la.N = 0
}
