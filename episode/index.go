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

// ErrPoolSize is returned when a pool has fewer classes than requested
var ErrPoolSize = errors.New("episode: not enough classes in pool")

// Class is one character class of the dataset
type Class interface {
	// ID is the unique class identifier within the Index
	ID() int

	// Sample returns one exemplar image, a square [Y, X] tensor in [0,1].
	// The returned tensor must not be modified.
	Sample(rnd *rand.Rand) *etensor.Float32

	// Rotation is the number of 90 degree counter-clockwise turns applied
	// to every exemplar of this class, fixed for the lifetime of the Index.
	Rotation() int
}

// Index is the dataset seen by the episode generator
type Index interface {
	// NClasses returns the number of classes in the pool
	NClasses(pool Pools) int

	// Draw returns n distinct classes drawn uniformly at random from the pool
	Draw(pool Pools, n int, rnd *rand.Rand) ([]Class, error)
}

// MemClass is a Class whose exemplars are held in memory
type MemClass struct {
	Id   int                `desc:"class identifier"`
	Name string             `desc:"optional name, e.g., alphabet/character directory"`
	Rot  int                `desc:"number of 90 degree counter-clockwise rotations"`
	Imgs []*etensor.Float32 `desc:"exemplar images"`
}

func (mc *MemClass) ID() int       { return mc.Id }
func (mc *MemClass) Rotation() int { return mc.Rot }

// Sample returns one exemplar uniformly at random
func (mc *MemClass) Sample(rnd *rand.Rand) *etensor.Float32 {
	return mc.Imgs[rnd.Intn(len(mc.Imgs))]
}

// MemIndex is an in-memory Index.  Classes are split by position: the last
// NTest classes are the test pool and the rest the training pool.
type MemIndex struct {
	Classes []*MemClass `desc:"all classes, training pool first"`
	NTest   int         `desc:"number of held-out test classes at the end of Classes"`
}

// NewMemIndex returns an index over given classes, assigning each class a
// random rotation from rnd.  The last ntest classes form the test pool, so
// callers wanting a random split should shuffle the classes first.
func NewMemIndex(classes []*MemClass, ntest int, rnd *rand.Rand) (*MemIndex, error) {
	if ntest < 1 || ntest >= len(classes) {
		return nil, fmt.Errorf("%w: %d test classes out of %d", ErrPoolSize, ntest, len(classes))
	}
	for ci, cl := range classes {
		if len(cl.Imgs) == 0 {
			return nil, fmt.Errorf("episode: class %d (%s) has no exemplars", ci, cl.Name)
		}
		cl.Id = ci
		cl.Rot = rnd.Intn(4)
	}
	return &MemIndex{Classes: classes, NTest: ntest}, nil
}

// Pool returns the classes of the pool
func (mi *MemIndex) Pool(pool Pools) []*MemClass {
	ntr := len(mi.Classes) - mi.NTest
	if pool == TestPool {
		return mi.Classes[ntr:]
	}
	return mi.Classes[:ntr]
}

// NClasses returns the number of classes in the pool
func (mi *MemIndex) NClasses(pool Pools) int {
	return len(mi.Pool(pool))
}

// Draw returns n distinct classes drawn uniformly from the pool
func (mi *MemIndex) Draw(pool Pools, n int, rnd *rand.Rand) ([]Class, error) {
	pc := mi.Pool(pool)
	if n > len(pc) {
		return nil, fmt.Errorf("%w: %d requested from %v with %d", ErrPoolSize, n, pool, len(pc))
	}
	perm := rnd.Perm(len(pc))
	cls := make([]Class, n)
	for i := range cls {
		cls[i] = pc[perm[i]]
	}
	return cls, nil
}
