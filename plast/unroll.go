// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"fmt"

	"github.com/emer/etable/etensor"
)

// Unroll records the forward steps of one episode so that the loss on the
// final output can be backpropagated through every step, including through
// the trace recurrence.  The steps must be chained: each hebb passed to Step
// is the trace returned by the previous Step, starting from InitialZeroHebb.
type Unroll struct {
	Net   *Network     `desc:"network being unrolled"`
	Steps []*stepState `desc:"recorded steps of the current episode"`
	NStep int          `desc:"number of steps recorded since Reset"`
}

// NewUnroll returns a new unroll recorder for the network
func NewUnroll(nt *Network) *Unroll {
	return &Unroll{Net: nt}
}

// Reset forgets all recorded steps.  Allocated step memory is reused.
func (ur *Unroll) Reset() {
	ur.NStep = 0
}

// Step runs one forward step like Network.Step and records it.
func (ur *Unroll) Step(img, lbl, hebb *etensor.Float32) (out, nhebb *etensor.Float32, err error) {
	nt := ur.Net
	if err = nt.checkStep(img, lbl, hebb); err != nil {
		return
	}
	if ur.NStep == len(ur.Steps) {
		st := &stepState{}
		st.alloc(nt)
		ur.Steps = append(ur.Steps, st)
	}
	st := ur.Steps[ur.NStep]
	ur.NStep++
	nhebb = nt.InitialZeroHebb()
	nt.forward(img.Values, lbl.Values, hebb.Values, st, nhebb.Values)
	out = etensor.NewFloat32([]int{nt.Params.NClass}, nil, []string{"Class"})
	copy(out.Values, st.Out)
	return
}

// Out returns the output of the last recorded step (nil if none)
func (ur *Unroll) Out() []float32 {
	if ur.NStep == 0 {
		return nil
	}
	return ur.Steps[ur.NStep-1].Out
}

// Backward backpropagates dOut, the gradient of the loss wrt the output of
// the last recorded step, through all recorded steps, and accumulates the
// gradients into the Grad of every parameter.
func (ur *Unroll) Backward(dOut []float32) error {
	nt := ur.Net
	pr := &nt.Params
	ne := pr.NEmbed()
	nc := pr.NClass
	if ur.NStep == 0 {
		return fmt.Errorf("plast: Backward called with no recorded steps")
	}
	if len(dOut) != nc {
		return fmt.Errorf("plast: dOut has %d values, expected %d", len(dOut), nc)
	}
	nt.Backend.FunTimerStart(BackwardTimer)
	defer nt.Backend.FunTimerStop(BackwardTimer)

	w := nt.W.Val.Values
	alpha := nt.Alpha.Val.Values
	dw := nt.W.Grad.Values
	dalpha := nt.Alpha.Grad.Values
	eta := nt.Eta.Val.Values[0]
	yoked := pr.Alpha == Yoked
	oja := pr.Rule == Oja

	dH := make([]float32, ne*nc)     // d loss / d trace output of step t
	dHprv := make([]float32, ne*nc)  // d loss / d trace input of step t
	dy := make([]float32, nc)
	dz := make([]float32, nc)
	var dActs [NConv + 1][]float32
	for li := 1; li <= NConv; li++ {
		dActs[li] = make([]float32, nt.Convs[li-1].OutLen())
	}
	deta := 0.0
	dyoked := 0.0

	for t := ur.NStep - 1; t >= 0; t-- {
		st := ur.Steps[t]
		x := st.Embed()
		y := st.Out
		h := st.Hebb
		dx := dActs[NConv]
		for i := range dx {
			dx[i] = 0
		}
		for j := range dy {
			dy[j] = 0
		}
		if t == ur.NStep-1 {
			copy(dy, dOut)
		}

		// trace update
		for i := 0; i < ne; i++ {
			for j := 0; j < nc; j++ {
				ij := i*nc + j
				g := dH[ij]
				if g == 0 {
					dHprv[ij] = 0
					continue
				}
				yj := y[j]
				if oja {
					dHprv[ij] = g * (1 - eta*yj*yj)
					deta += float64(g * (x[i]*yj - h[ij]*yj*yj))
					dx[i] += eta * g * yj
					dy[j] += eta * g * (x[i] - 2*h[ij]*yj)
				} else {
					dHprv[ij] = (1 - eta) * g
					deta += float64(g * (x[i]*yj - h[ij]))
					dx[i] += eta * g * yj
					dy[j] += eta * g * x[i]
				}
			}
		}

		// softmax
		s := float32(0)
		for j := 0; j < nc; j++ {
			s += dy[j] * y[j]
		}
		for j := 0; j < nc; j++ {
			dz[j] = y[j] * (dy[j] - s)
		}

		// plastic linear layer
		for i := 0; i < ne; i++ {
			xi := x[i]
			for j := 0; j < nc; j++ {
				ij := i*nc + j
				d := dz[j]
				a := alpha[0]
				if !yoked {
					a = alpha[ij]
				}
				dw[ij] += xi * d
				if yoked {
					dyoked += float64(xi * h[ij] * d)
				} else {
					dalpha[ij] += xi * h[ij] * d
				}
				dHprv[ij] += xi * a * d
				dx[i] += (w[ij] + a*h[ij]) * d
			}
		}

		// conv encoder
		for li := NConv - 1; li >= 0; li-- {
			var dIn []float32
			if li > 0 {
				dIn = dActs[li]
			}
			nt.Convs[li].Backward(st.Acts[li], st.Acts[li+1], dActs[li+1], dIn, pr.Activ, nt.Backend)
		}

		dH, dHprv = dHprv, dH
	}
	nt.Eta.Grad.Values[0] += float32(deta)
	if yoked {
		dalpha[0] += float32(dyoked)
	}
	return nil
}
