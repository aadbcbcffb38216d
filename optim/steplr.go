// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/goki/mat32"
)

// Lrater is an optimizer with a settable learning rate
type Lrater interface {
	SetLrate(lr float32)
}

func (op *Adam) SetLrate(lr float32) { op.Lrate = lr }

// StepLR decays the learning rate of an optimizer by Gamma every
// StepSize calls to Step: lr = Base * Gamma^floor(N / StepSize)
type StepLR struct {
	Base     float32 `desc:"initial learning rate"`
	Gamma    float32 `def:"0.666" desc:"multiplicative decay factor"`
	StepSize int     `def:"1e6" min:"1" desc:"number of steps between decays"`
	N        int     `inactive:"+" desc:"number of steps taken"`
	Opt      Lrater  `view:"-" desc:"optimizer whose learning rate is set"`
}

// NewStepLR returns a schedule driving opt, starting at base
func NewStepLR(opt Lrater, base, gamma float32, stepSize int) *StepLR {
	sc := &StepLR{Base: base, Gamma: gamma, StepSize: stepSize, Opt: opt}
	sc.Opt.SetLrate(sc.Lrate())
	return sc
}

// Lrate returns the learning rate at the current step count
func (sc *StepLR) Lrate() float32 {
	if sc.StepSize < 1 {
		return sc.Base
	}
	return sc.Base * mat32.Pow(sc.Gamma, float32(sc.N/sc.StepSize))
}

// Step advances the step count and sets the optimizer's learning rate
func (sc *StepLR) Step() {
	sc.N++
	sc.Opt.SetLrate(sc.Lrate())
}
