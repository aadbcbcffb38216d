// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package episode builds few-shot classification episodes from an image
dataset that is split by class into a training pool and a held-out test pool.

An episode shows each of C classes S times (in a fresh random order per
shot), each presentation lasting PresTime steps with its one-hot label,
followed by IPD empty delay steps.  It then shows one image of one of the
C classes for PresTimeTest steps with no label: this is the query, and its
one-hot class is the Target.  Labels index the classes in the order they
were drawn, not the order they are presented in.

Each class has a rotation (0, 90, 180 or 270 degrees) fixed for the
lifetime of the Index, so the same character is always seen the same way
within a run.
*/
package episode
