// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"fmt"
	"strings"

	"github.com/goki/ki/kit"
)

// parseEnum returns the index of the name matching s, ignoring case,
// among the n values of an enum (not counting its N sentinel)
func parseEnum(s string, n int, name func(i int) string, typ string) (int, error) {
	for i := 0; i < n; i++ {
		if strings.EqualFold(s, name(i)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("plast: %q is not a valid %s", s, typ)
}

// ActFuns are the activation functions available for the conv encoder
type ActFuns int

//go:generate stringer -type=ActFuns

var KiT_ActFuns = kit.Enums.AddEnum(ActFunsN, false, nil)

func (ev ActFuns) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *ActFuns) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

func (ev ActFuns) MarshalText() ([]byte, error)  { return []byte(ev.String()), nil }
func (ev *ActFuns) UnmarshalText(b []byte) error { return ev.SetString(string(b)) }

// SetString sets the value from its name, ignoring case
func (ev *ActFuns) SetString(s string) error {
	i, err := parseEnum(s, int(ActFunsN), func(i int) string { return ActFuns(i).String() }, "ActFuns")
	if err != nil {
		return err
	}
	*ev = ActFuns(i)
	return nil
}

const (
	// Tanh is the hyperbolic tangent
	Tanh ActFuns = iota

	// ReLU is the rectified linear function max(0, x)
	ReLU

	// SELU is the scaled exponential linear unit
	SELU

	ActFunsN
)

// Rules are the trace update rules
type Rules int

//go:generate stringer -type=Rules

var KiT_Rules = kit.Enums.AddEnum(RulesN, false, nil)

func (ev Rules) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Rules) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

func (ev Rules) MarshalText() ([]byte, error)  { return []byte(ev.String()), nil }
func (ev *Rules) UnmarshalText(b []byte) error { return ev.SetString(string(b)) }

// SetString sets the value from its name, ignoring case
func (ev *Rules) SetString(s string) error {
	i, err := parseEnum(s, int(RulesN), func(i int) string { return Rules(i).String() }, "Rules")
	if err != nil {
		return err
	}
	*ev = Rules(i)
	return nil
}

const (
	// Hebb is a decaying Hebbian trace: hebb = (1-eta) hebb + eta x y
	Hebb Rules = iota

	// Oja is Oja's rule: hebb += eta (x - hebb y) y, which bounds trace growth
	Oja

	RulesN
)

// AlphaModes determine how the plasticity coefficients are shared
type AlphaModes int

//go:generate stringer -type=AlphaModes

var KiT_AlphaModes = kit.Enums.AddEnum(AlphaModesN, false, nil)

func (ev AlphaModes) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *AlphaModes) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

func (ev AlphaModes) MarshalText() ([]byte, error)  { return []byte(ev.String()), nil }
func (ev *AlphaModes) UnmarshalText(b []byte) error { return ev.SetString(string(b)) }

// SetString sets the value from its name, ignoring case
func (ev *AlphaModes) SetString(s string) error {
	i, err := parseEnum(s, int(AlphaModesN), func(i int) string { return AlphaModes(i).String() }, "AlphaModes")
	if err != nil {
		return err
	}
	*ev = AlphaModes(i)
	return nil
}

const (
	// Free has one alpha per plastic connection
	Free AlphaModes = iota

	// Yoked has a single alpha shared by all plastic connections
	Yoked

	AlphaModesN
)

// Backends select how the data-parallel loops are run
type Backends int

//go:generate stringer -type=Backends

var KiT_Backends = kit.Enums.AddEnum(BackendsN, false, nil)

func (ev Backends) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Backends) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

func (ev Backends) MarshalText() ([]byte, error)  { return []byte(ev.String()), nil }
func (ev *Backends) UnmarshalText(b []byte) error { return ev.SetString(string(b)) }

// SetString sets the value from its name, ignoring case
func (ev *Backends) SetString(s string) error {
	i, err := parseEnum(s, int(BackendsN), func(i int) string { return Backends(i).String() }, "Backends")
	if err != nil {
		return err
	}
	*ev = Backends(i)
	return nil
}

const (
	// CPU runs everything in the calling goroutine
	CPU Backends = iota

	// Threads spreads the conv loops over a pool of worker goroutines
	Threads

	BackendsN
)
