// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package plastic is the overall repository for few-shot learning with
differentiable plasticity: a conv encoder feeding a plastic output layer
whose Hebbian trace changes within each episode, with the plasticity
coefficients themselves learned by gradient descent through whole episodes.

This top-level of the repository has no functional code -- everything is organized
into the following sub-repositories:

* plast: the network -- conv encoder, plastic output layer, Hebb and Oja
trace rules, the unrolled backward pass, compute backends and weights files.

* episode: few-shot episodes -- the dataset index, Omniglot loading, episode
generation with per-class rotations, and an env.Env adapter.

* optim: the Adam optimizer and StepLR learning rate schedule.

* train: the training loop alternating training and held-out evaluation
iterations, with logs and checkpoints.

* examples: these actually compile into runnable programs.  examples/omniglot
is the place to start: it trains on Omniglot (or synthetic classes) from the
command line.  examples/env dumps episodes, examples/bench times iterations
and examples/eqplot plots the activation functions.
*/
package plastic
