// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"github.com/emer/etable/etensor"
)

// Param is one trainable parameter tensor with its accumulated gradient
type Param struct {
	Name string          `desc:"name of the parameter, used in weights files and reports"`
	Val  etensor.Float32 `desc:"current values"`
	Grad etensor.Float32 `desc:"gradient of the loss wrt Val, accumulated by Unroll.Backward"`
}

// Init names the parameter and allocates Val and Grad with given shape
func (pr *Param) Init(name string, shape []int, dims []string) {
	pr.Name = name
	pr.Val.SetShape(shape, nil, dims)
	pr.Grad.SetShape(shape, nil, dims)
}

// Len returns the number of values
func (pr *Param) Len() int {
	return len(pr.Val.Values)
}

// ZeroGrad resets the gradient to 0
func (pr *Param) ZeroGrad() {
	for i := range pr.Grad.Values {
		pr.Grad.Values[i] = 0
	}
}

// ValGrad returns the value and gradient slices, for optimizers
func (pr *Param) ValGrad() (val, grad []float32) {
	return pr.Val.Values, pr.Grad.Values
}
