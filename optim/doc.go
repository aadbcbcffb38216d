// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package optim provides the gradient-descent optimizer used to train plastic
networks: Adam with bias correction, and a step-wise learning rate schedule
(StepLR) that multiplies the learning rate by Gamma every StepSize steps.

Parameters are anything exposing their value and gradient slices through
the Var interface.
*/
package optim
