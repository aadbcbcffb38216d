// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package episode

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/emer/etable/etensor"
	"github.com/pkg/errors"
)

// NOmniglotTest is the standard number of held-out Omniglot test classes
const NOmniglotTest = 100

// imageExts are the file extensions read as exemplars
var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// subDirs returns the sorted subdirectories of dir
func subDirs(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var ds []string
	for _, e := range ents {
		if e.IsDir() {
			ds = append(ds, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(ds)
	return ds, nil
}

// OpenClass loads all images in dir as the exemplars of one class, converted
// to gray and resized to sz x sz.
func OpenClass(dir string, sz int) (*MemClass, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "episode: reading class dir %s", dir)
	}
	mc := &MemClass{Name: filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir))}
	for _, e := range ents {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		fn := filepath.Join(dir, e.Name())
		img, err := imgio.Open(fn)
		if err != nil {
			return nil, errors.Wrapf(err, "episode: opening image %s", fn)
		}
		mc.Imgs = append(mc.Imgs, ResizeImage(effect.Grayscale(img), sz))
	}
	return mc, nil
}

// OpenOmniglot loads the Omniglot character classes found under the given
// base directories, laid out as base/alphabet/character/*.png.  Images are
// resized to sz x sz at load time.  Classes are shuffled with rnd and the
// last ntest become the test pool.
func OpenOmniglot(bases []string, sz, ntest int, rnd *rand.Rand) (*MemIndex, error) {
	var classes []*MemClass
	for _, base := range bases {
		alphas, err := subDirs(base)
		if err != nil {
			return nil, errors.Wrapf(err, "episode: reading dataset dir %s", base)
		}
		for _, adir := range alphas {
			chars, err := subDirs(adir)
			if err != nil {
				return nil, errors.Wrapf(err, "episode: reading alphabet dir %s", adir)
			}
			for _, cdir := range chars {
				mc, err := OpenClass(cdir, sz)
				if err != nil {
					return nil, err
				}
				if len(mc.Imgs) > 0 {
					classes = append(classes, mc)
				}
			}
		}
	}
	if len(classes) == 0 {
		return nil, errors.Errorf("episode: no character classes found in %v", bases)
	}
	rnd.Shuffle(len(classes), func(i, j int) { classes[i], classes[j] = classes[j], classes[i] })
	return NewMemIndex(classes, ntest, rnd)
}

// NewSynthIndex returns an index of nclass random classes with nex exemplars
// each, of side sz: every class has a random prototype, and its exemplars
// are noisy copies of it.  It is used for testing and quick runs without data.
func NewSynthIndex(nclass, nex, sz, ntest int, rnd *rand.Rand) (*MemIndex, error) {
	classes := make([]*MemClass, nclass)
	for ci := range classes {
		proto := make([]float32, sz*sz)
		for i := range proto {
			if rnd.Float32() < 0.2 {
				proto[i] = 1
			}
		}
		mc := &MemClass{}
		for e := 0; e < nex; e++ {
			img := etensor.NewFloat32([]int{sz, sz}, nil, []string{"Y", "X"})
			for i, p := range proto {
				img.Values[i] = pixRange.ClipVal(p + 0.1*float32(rnd.NormFloat64()))
			}
			mc.Imgs = append(mc.Imgs, img)
		}
		classes[ci] = mc
	}
	return NewMemIndex(classes, ntest, rnd)
}
