// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package episode

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/emer/etable/etensor"
)

var (
	// ErrConfig is returned (wrapped) for invalid episode parameters
	ErrConfig = errors.New("episode: invalid configuration")

	// ErrStepCount is returned when an episode does not have exactly NSteps steps.
	// It signals an internal inconsistency and must not be retried.
	ErrStepCount = errors.New("episode: step count mismatch")
)

// Params are the episode structure parameters
type Params struct {
	NClass       int `def:"5" min:"1" desc:"number of classes per episode (C)"`
	NShots       int `def:"1" min:"1" desc:"number of times each class is presented during study (S)"`
	PresTime     int `def:"1" min:"1" desc:"number of steps each study image is presented"`
	IPD          int `def:"0" min:"0" desc:"inter-presentation delay: number of blank steps after each study presentation"`
	PresTimeTest int `def:"1" min:"1" desc:"number of steps the query image is presented"`
	ImgSize      int `def:"31" min:"1" desc:"side of the square images presented"`
}

// Defaults sets the default parameters
func (pr *Params) Defaults() {
	pr.NClass = 5
	pr.NShots = 1
	pr.PresTime = 1
	pr.IPD = 0
	pr.PresTimeTest = 1
	pr.ImgSize = 31
}

// Validate returns an ErrConfig error for any out of range parameter
func (pr *Params) Validate() error {
	switch {
	case pr.NClass < 1:
		return fmt.Errorf("%w: NClass = %d", ErrConfig, pr.NClass)
	case pr.NShots < 1:
		return fmt.Errorf("%w: NShots = %d", ErrConfig, pr.NShots)
	case pr.PresTime < 1:
		return fmt.Errorf("%w: PresTime = %d", ErrConfig, pr.PresTime)
	case pr.IPD < 0:
		return fmt.Errorf("%w: IPD = %d", ErrConfig, pr.IPD)
	case pr.PresTimeTest < 1:
		return fmt.Errorf("%w: PresTimeTest = %d", ErrConfig, pr.PresTimeTest)
	case pr.ImgSize < 1:
		return fmt.Errorf("%w: ImgSize = %d", ErrConfig, pr.ImgSize)
	}
	return nil
}

// NSteps returns the total number of steps in an episode:
// NShots * (PresTime + IPD) * NClass + PresTimeTest
func (pr *Params) NSteps() int {
	return pr.NShots*(pr.PresTime+pr.IPD)*pr.NClass + pr.PresTimeTest
}

// Step is one time step of an episode.  Tensors may be shared between steps
// and must not be modified.
type Step struct {
	Kind  StepKinds        `desc:"study, delay or query"`
	Class int              `desc:"index of the class in the episode's draw order, -1 for delay steps"`
	Image *etensor.Float32 `desc:"image [ImgSize, ImgSize] -- all zero for delay steps"`
	Label *etensor.Float32 `desc:"one-hot label [NClass] on study steps, all zero otherwise"`
}

// Episode is one few-shot classification trial
type Episode struct {
	Params     Params           `desc:"parameters used to generate the episode"`
	Pool       Pools            `desc:"pool the classes were drawn from"`
	Classes    []int            `desc:"class IDs in draw order -- label index i means Classes[i]"`
	QueryIdx   int              `desc:"index of the query class in Classes"`
	QueryClass int              `desc:"class ID of the query"`
	Steps      []Step           `desc:"the steps, NSteps of them"`
	Target     *etensor.Float32 `desc:"one-hot ground truth of the query [NClass], revealed only after the episode"`
}

// NewLabel returns a label vector of n classes, one-hot at idx, or all-zero if idx < 0
func NewLabel(n, idx int) *etensor.Float32 {
	lbl := etensor.NewFloat32([]int{n}, nil, []string{"Class"})
	if idx >= 0 {
		lbl.Values[idx] = 1
	}
	return lbl
}

// present returns one exemplar of cl, rotated and sized for presentation
func present(cl Class, sz int, rnd *rand.Rand) *etensor.Float32 {
	return Resize(Rot90(cl.Sample(rnd), cl.Rotation()), sz)
}

// Generate builds one episode from classes of the given pool of idx.
func Generate(idx Index, pool Pools, pr *Params, rnd *rand.Rand) (*Episode, error) {
	if err := pr.Validate(); err != nil {
		return nil, err
	}
	nc := pr.NClass
	cls, err := idx.Draw(pool, nc, rnd)
	if err != nil {
		return nil, err
	}
	rnd.Shuffle(nc, func(i, j int) { cls[i], cls[j] = cls[j], cls[i] })

	ep := &Episode{Params: *pr, Pool: pool}
	ep.Classes = make([]int, nc)
	for i, cl := range cls {
		ep.Classes[i] = cl.ID()
	}
	ep.QueryIdx = rnd.Intn(nc)
	ep.QueryClass = ep.Classes[ep.QueryIdx]
	ep.Steps = make([]Step, 0, pr.NSteps())

	blank := etensor.NewFloat32([]int{pr.ImgSize, pr.ImgSize}, nil, []string{"Y", "X"})
	nolbl := NewLabel(nc, -1)
	order := make([]int, nc)
	for i := range order {
		order[i] = i
	}
	for shot := 0; shot < pr.NShots; shot++ {
		rnd.Shuffle(nc, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, ci := range order {
			img := present(cls[ci], pr.ImgSize, rnd)
			lbl := NewLabel(nc, ci)
			for p := 0; p < pr.PresTime; p++ {
				ep.Steps = append(ep.Steps, Step{Kind: Study, Class: ci, Image: img, Label: lbl})
			}
			for d := 0; d < pr.IPD; d++ {
				ep.Steps = append(ep.Steps, Step{Kind: Delay, Class: -1, Image: blank, Label: nolbl})
			}
		}
	}
	qimg := present(cls[ep.QueryIdx], pr.ImgSize, rnd)
	for p := 0; p < pr.PresTimeTest; p++ {
		ep.Steps = append(ep.Steps, Step{Kind: Query, Class: ep.QueryIdx, Image: qimg, Label: nolbl})
	}
	if len(ep.Steps) != pr.NSteps() {
		return nil, fmt.Errorf("%w: generated %d steps, expected %d", ErrStepCount, len(ep.Steps), pr.NSteps())
	}
	ep.Target = NewLabel(nc, ep.QueryIdx)
	return ep, nil
}

// NSteps returns the number of steps in the episode
func (ep *Episode) NSteps() int {
	return len(ep.Steps)
}
