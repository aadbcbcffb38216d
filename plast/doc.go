// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package plast implements a network with differentiable plasticity for
few-shot classification.

A stack of four 3x3 stride-2 convolutions encodes each image into an
embedding vector x, which drives a single plastic output layer:

	z_j = sum_i x_i (W_ij + alpha_ij hebb_ij) + K label_j
	y   = softmax(z)

The hebb trace is reset at the start of every episode and updated on every
step, by either a decaying Hebbian rule or Oja's rule.  W, alpha, eta and
the conv filters are the trainable parameters, and all of them are learned
by backpropagation through the full unrolled episode (see Unroll).

Network.Step is a pure function of its arguments and the parameters: the
trace is passed in and the updated trace is returned, so the caller owns
the trace for the duration of the episode.
*/
package plast
