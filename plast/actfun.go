// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"github.com/chewxy/math32"
)

// SELU constants
const (
	SeluAlpha = 1.6732632423543772
	SeluScale = 1.0507009873554805
)

// Act returns the activation of net input x
func (af ActFuns) Act(x float32) float32 {
	switch af {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case SELU:
		if x > 0 {
			return SeluScale * x
		}
		return SeluScale * SeluAlpha * (math32.Exp(x) - 1)
	default:
		return math32.Tanh(x)
	}
}

// Deriv returns the derivative of the activation, expressed in terms of
// the activation output y = Act(x), which is all that the backward pass keeps.
func (af ActFuns) Deriv(y float32) float32 {
	switch af {
	case ReLU:
		if y > 0 {
			return 1
		}
		return 0
	case SELU:
		if y > 0 {
			return SeluScale
		}
		return y + SeluScale*SeluAlpha
	default:
		return 1 - y*y
	}
}
