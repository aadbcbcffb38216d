// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package episode

import (
	"github.com/goki/ki/kit"
)

// Pools are the disjoint sets of classes that episodes are drawn from
type Pools int

//go:generate stringer -type=Pools

var KiT_Pools = kit.Enums.AddEnum(PoolsN, false, nil)

func (ev Pools) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Pools) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// TrainPool classes are used for training episodes
	TrainPool Pools = iota

	// TestPool classes are held out for evaluation episodes
	TestPool

	PoolsN
)

// StepKinds are the kinds of steps in an episode
type StepKinds int

//go:generate stringer -type=StepKinds

var KiT_StepKinds = kit.Enums.AddEnum(StepKindsN, false, nil)

func (ev StepKinds) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *StepKinds) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Study steps show a class image together with its label
	Study StepKinds = iota

	// Delay steps have blank image and label
	Delay

	// Query steps show the query image with no label
	Query

	StepKindsN
)
