// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package episode

import (
	"fmt"
	"math/rand"

	"github.com/emer/emergent/env"
	"github.com/emer/etable/etensor"
)

// Env presents episodes one step at a time as an emergent env.Env.
// Each call to NewEpisode generates a fresh episode (counted by Epoch),
// and each Step advances to its next step (counted by Trial), until
// Step returns false at the end of the episode.
type Env struct {
	Nm      string     `desc:"name of this environment"`
	Dsc     string     `desc:"description of this environment"`
	Index   Index      `view:"-" desc:"dataset the episodes are drawn from"`
	Pool    Pools      `desc:"pool of classes to draw from"`
	Params  Params     `desc:"episode parameters"`
	Rand    *rand.Rand `view:"-" desc:"random source for episode generation"`
	Episode *Episode   `desc:"current episode"`

	Image  etensor.Float32 `desc:"image of the current step [ImgSize, ImgSize]"`
	Label  etensor.Float32 `desc:"label of the current step [NClass]"`
	Target etensor.Float32 `desc:"query target of the current episode [NClass]"`

	Run   env.Ctr `view:"inline" desc:"current run of model as provided during Init"`
	Epoch env.Ctr `view:"inline" desc:"number of episodes generated"`
	Trial env.Ctr `view:"inline" desc:"step within the current episode"`
}

func (ev *Env) Name() string { return ev.Nm }
func (ev *Env) Desc() string { return ev.Dsc }

// Config sets the dataset, pool, parameters and random source, and configures the states
func (ev *Env) Config(idx Index, pool Pools, pr *Params, rnd *rand.Rand) {
	ev.Index = idx
	ev.Pool = pool
	ev.Params = *pr
	ev.Rand = rnd
	ev.Image.SetShape([]int{pr.ImgSize, pr.ImgSize}, nil, []string{"Y", "X"})
	ev.Label.SetShape([]int{pr.NClass}, nil, []string{"Class"})
	ev.Target.SetShape([]int{pr.NClass}, nil, []string{"Class"})
}

func (ev *Env) Validate() error {
	if ev.Index == nil || ev.Rand == nil {
		return fmt.Errorf("episode.Env: %v has no Index or Rand -- need to Config", ev.Nm)
	}
	if n := ev.Index.NClasses(ev.Pool); n < ev.Params.NClass {
		return fmt.Errorf("%w: %v has %d classes in %v, episodes need %d", ErrPoolSize, ev.Nm, n, ev.Pool, ev.Params.NClass)
	}
	return ev.Params.Validate()
}

func (ev *Env) State(element string) etensor.Tensor {
	switch element {
	case "Image":
		return &ev.Image
	case "Label":
		return &ev.Label
	case "Target":
		return &ev.Target
	}
	return nil
}

// String returns the current state as a string
func (ev *Env) String() string {
	if ev.Episode == nil || ev.Trial.Cur < 0 || ev.Trial.Cur >= ev.Episode.NSteps() {
		return ""
	}
	st := &ev.Episode.Steps[ev.Trial.Cur]
	return fmt.Sprintf("%v_%d", st.Kind, st.Class)
}

// Init is called to restart environment
func (ev *Env) Init(run int) {
	ev.Run.Scale = env.Run
	ev.Epoch.Scale = env.Epoch
	ev.Trial.Scale = env.Trial
	ev.Run.Init()
	ev.Epoch.Init()
	ev.Trial.Init()
	ev.Run.Cur = run
	ev.Epoch.Cur = -1
	ev.Trial.Cur = -1
	ev.Episode = nil
}

// NewEpisode generates the next episode.  The first Step then presents its first step.
func (ev *Env) NewEpisode() error {
	ep, err := Generate(ev.Index, ev.Pool, &ev.Params, ev.Rand)
	if err != nil {
		return err
	}
	ev.Episode = ep
	ev.Epoch.Incr()
	ev.Trial.Init()
	ev.Trial.Cur = -1
	ev.Trial.Max = ep.NSteps()
	copy(ev.Target.Values, ep.Target.Values)
	return nil
}

// Step advances to the next step of the current episode, returning false
// when there are no more steps (or no episode).
func (ev *Env) Step() bool {
	if ev.Episode == nil || ev.Trial.Cur+1 >= ev.Episode.NSteps() {
		return false
	}
	ev.Trial.Incr()
	st := &ev.Episode.Steps[ev.Trial.Cur]
	copy(ev.Image.Values, st.Image.Values)
	copy(ev.Label.Values, st.Label.Values)
	return true
}

// Kind returns the kind of the current step
func (ev *Env) Kind() StepKinds {
	return ev.Episode.Steps[ev.Trial.Cur].Kind
}

func (ev *Env) Action(element string, input etensor.Tensor) {
	// nop
}

func (ev *Env) Counter(scale env.TimeScales) (cur, prv int, chg bool) {
	switch scale {
	case env.Run:
		return ev.Run.Query()
	case env.Epoch:
		return ev.Epoch.Query()
	case env.Trial:
		return ev.Trial.Query()
	}
	return -1, -1, false
}

// Compile-time check that implements Env interface
var _ env.Env = (*Env)(nil)
