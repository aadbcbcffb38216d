// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"errors"
	"fmt"

	"github.com/emer/emergent/erand"
)

// ErrConfig is returned (wrapped) for any invalid network configuration.
var ErrConfig = errors.New("plast: invalid configuration")

const (
	// NConv is the number of conv layers in the encoder
	NConv = 4

	// KernSize is the side of the square conv kernels
	KernSize = 3

	// Stride is the conv stride
	Stride = 2
)

// ConvOut returns the output side of a valid 3x3 stride-2 convolution
// on an input of side sz, or 0 if sz is too small.
func ConvOut(sz int) int {
	if sz < KernSize {
		return 0
	}
	return (sz-KernSize)/Stride + 1
}

// Params has the structural and initialization parameters of a Network
type Params struct {
	NClass    int        `def:"5" min:"1" desc:"number of classes per episode, which is the width of the plastic output layer"`
	NFeat     int        `def:"64" min:"1" desc:"number of feature maps in the conv encoder -- the final layer width is the embedding width"`
	ImgSize   int        `def:"31" desc:"side of the square grayscale input -- must reduce to exactly 1x1 after the four convolutions (31 to 46)"`
	Flare     bool       `def:"false" desc:"use widths NFeat/4, NFeat/4, NFeat/2, NFeat for the four conv layers instead of NFeat throughout"`
	Activ     ActFuns    `def:"Tanh" desc:"activation function of the conv layers"`
	Rule      Rules      `def:"Hebb" desc:"trace update rule"`
	Alpha     AlphaModes `def:"Free" desc:"one plasticity coefficient per connection (Free) or a single shared one (Yoked)"`
	LabelGain float32    `def:"1000" desc:"gain on the label input -- large enough that a nonzero label clamps the output to one-hot"`

	WtInit    erand.RndParams `view:"inline" desc:"initial distribution of the fixed weights W"`
	AlphaInit erand.RndParams `view:"inline" desc:"initial distribution of the free alpha coefficients -- yoked alpha starts at the top of the range, AlphaInit.Mean + AlphaInit.Var"`
	EtaInit   float32         `def:"0.01" desc:"initial trace update rate"`
}

// Defaults sets the default parameters
func (pr *Params) Defaults() {
	pr.NClass = 5
	pr.NFeat = 64
	pr.ImgSize = 31
	pr.Flare = false
	pr.Activ = Tanh
	pr.Rule = Hebb
	pr.Alpha = Free
	pr.LabelGain = 1000
	pr.WtInit.Dist = erand.Gaussian
	pr.WtInit.Mean = 0
	pr.WtInit.Var = 0.01
	pr.AlphaInit.Dist = erand.Uniform
	pr.AlphaInit.Mean = 0.005
	pr.AlphaInit.Var = 0.005
	pr.EtaInit = 0.01
}

// Validate returns an ErrConfig error describing the first problem found
func (pr *Params) Validate() error {
	if pr.Activ < 0 || pr.Activ >= ActFunsN {
		return fmt.Errorf("%w: activation %v (must be Tanh, ReLU or SELU)", ErrConfig, pr.Activ)
	}
	if pr.Rule < 0 || pr.Rule >= RulesN {
		return fmt.Errorf("%w: rule %v (must be Hebb or Oja)", ErrConfig, pr.Rule)
	}
	if pr.Alpha < 0 || pr.Alpha >= AlphaModesN {
		return fmt.Errorf("%w: alpha mode %v (must be Free or Yoked)", ErrConfig, pr.Alpha)
	}
	if pr.NClass < 1 {
		return fmt.Errorf("%w: NClass = %d", ErrConfig, pr.NClass)
	}
	if pr.NFeat < 1 {
		return fmt.Errorf("%w: NFeat = %d", ErrConfig, pr.NFeat)
	}
	if pr.Flare && (pr.NFeat%4 != 0) {
		return fmt.Errorf("%w: NFeat = %d must be a multiple of 4 with Flare", ErrConfig, pr.NFeat)
	}
	sz := pr.ImgSize
	for li := 0; li < NConv; li++ {
		sz = ConvOut(sz)
	}
	if sz != 1 {
		return fmt.Errorf("%w: ImgSize = %d does not reduce to 1x1 through %d convolutions", ErrConfig, pr.ImgSize, NConv)
	}
	return nil
}

// Widths returns the number of feature maps of each conv layer
func (pr *Params) Widths() [NConv]int {
	if pr.Flare {
		return [NConv]int{pr.NFeat / 4, pr.NFeat / 4, pr.NFeat / 2, pr.NFeat}
	}
	return [NConv]int{pr.NFeat, pr.NFeat, pr.NFeat, pr.NFeat}
}

// NEmbed is the width of the embedding = the number of plastic inputs
func (pr *Params) NEmbed() int {
	return pr.NFeat
}

// NAlpha is the number of alpha coefficients
func (pr *Params) NAlpha() int {
	if pr.Alpha == Yoked {
		return 1
	}
	return pr.NEmbed() * pr.NClass
}
