// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"math"
)

// LogMin is the lower clamp on log values in the binary cross-entropy,
// so a fully confident wrong answer costs 100 rather than +Inf.
const LogMin = -100

// BCELoss returns the mean binary cross-entropy between probabilities y and
// targets t, and writes the gradient of the loss wrt y into dy (if non-nil).
func BCELoss(y, t, dy []float32) float64 {
	n := float64(len(y))
	loss := 0.0
	for i := range y {
		yi := float64(y[i])
		ti := float64(t[i])
		lp := math.Max(math.Log(yi), LogMin)
		ln := math.Max(math.Log(1-yi), LogMin)
		loss -= ti*lp + (1-ti)*ln
		if dy != nil {
			den := math.Max(yi*(1-yi), 1e-12)
			dy[i] = float32((yi - ti) / den / n)
		}
	}
	return loss / n
}
