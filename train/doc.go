// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package train runs the meta-training loop of a plastic network on few-shot
episodes.

Each iteration generates one episode, unrolls the network over all of its
steps starting from a zero trace, and computes the binary cross-entropy of
the final output against the query target.  Every TestEvery-th iteration is
an evaluation iteration: the episode is drawn from the held-out test pool and
no parameter is changed.  All other iterations backpropagate through the
whole episode and take one Adam step under a StepLR schedule.

Progress is recorded in etable logs (TstLog, SaveLog), and every SaveEvery
iterations a Snapshot is handed to a Sink.  FileSink writes weights, the
evaluation loss history, the config and a loss plot to a directory.
*/
package train
