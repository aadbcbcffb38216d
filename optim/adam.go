// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import (
	"fmt"

	"github.com/emer/etable/minmax"
	"github.com/goki/mat32"
)

// Var is a trainable variable: values and the gradient of the loss wrt them.
// The two slices must have the same length, which must not change
// between steps.
type Var interface {
	ValGrad() (val, grad []float32)
}

// AdamParams are the Adam hyperparameters
type AdamParams struct {
	Lrate float32 `def:"3e-5" desc:"learning rate -- typically driven by a StepLR schedule"`
	Beta1 float32 `def:"0.9" desc:"decay rate of the running mean of gradients"`
	Beta2 float32 `def:"0.999" desc:"decay rate of the running mean of squared gradients"`
	Eps   float32 `def:"1e-8" desc:"added to the denominator for numerical stability"`
	Clip  float32 `def:"0" desc:"if > 0, gradients are clipped to +/- Clip before use"`
}

func (ap *AdamParams) Defaults() {
	ap.Lrate = 3e-5
	ap.Beta1 = 0.9
	ap.Beta2 = 0.999
	ap.Eps = 1e-8
	ap.Clip = 0
}

// Adam is the Adam optimizer over a fixed, ordered set of variables
type Adam struct {
	AdamParams
	Vars  []Var       `view:"-" desc:"variables updated by Step, in fixed order"`
	M     [][]float32 `view:"-" desc:"running mean of gradients, per variable"`
	V     [][]float32 `view:"-" desc:"running mean of squared gradients, per variable"`
	NStep int         `inactive:"+" desc:"number of steps taken"`
}

// NewAdam returns an Adam optimizer over vars with default parameters
// and the given learning rate
func NewAdam(vars []Var, lrate float32) *Adam {
	op := &Adam{}
	op.Defaults()
	op.Lrate = lrate
	op.Vars = vars
	op.Reset()
	return op
}

// Reset zeroes the moment estimates and step count
func (op *Adam) Reset() {
	op.M = make([][]float32, len(op.Vars))
	op.V = make([][]float32, len(op.Vars))
	for i, vr := range op.Vars {
		val, _ := vr.ValGrad()
		op.M[i] = make([]float32, len(val))
		op.V[i] = make([]float32, len(val))
	}
	op.NStep = 0
}

// Step applies one update to every variable using its current gradient
func (op *Adam) Step() error {
	op.NStep++
	bc1 := 1 - mat32.Pow(op.Beta1, float32(op.NStep))
	bc2 := mat32.Sqrt(1 - mat32.Pow(op.Beta2, float32(op.NStep)))
	lr := op.Lrate / bc1
	clip := minmax.F32{Min: -op.Clip, Max: op.Clip}
	for i, vr := range op.Vars {
		val, grad := vr.ValGrad()
		m := op.M[i]
		v := op.V[i]
		if len(val) != len(m) || len(grad) != len(m) {
			return fmt.Errorf("optim.Adam: variable %d has %d values and %d grads, expected %d", i, len(val), len(grad), len(m))
		}
		for j, g := range grad {
			if op.Clip > 0 {
				g = clip.ClipVal(g)
			}
			m[j] = op.Beta1*m[j] + (1-op.Beta1)*g
			v[j] = op.Beta2*v[j] + (1-op.Beta2)*g*g
			val[j] -= lr * m[j] / (mat32.Sqrt(v[j])/bc2 + op.Eps)
		}
	}
	return nil
}
