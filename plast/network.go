// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/chewxy/math32"
	"github.com/emer/emergent/erand"
	"github.com/emer/etable/etensor"
)

// Network is the conv encoder plus plastic output layer.  It holds only the
// trainable parameters: the hebb trace is always passed in and returned.
type Network struct {
	Nm       string            `desc:"overall name of network"`
	Params   Params            `view:"inline" desc:"structural and initialization parameters"`
	Convs    [NConv]ConvLayer  `desc:"conv encoder layers"`
	W        Param             `desc:"fixed (non-plastic) weights [NEmbed, NClass]"`
	Alpha    Param             `desc:"plasticity coefficients, [NEmbed, NClass] for Free or [1] for Yoked"`
	Eta      Param             `desc:"trace update rate [1], shared by all connections"`
	Backend  *Backend          `view:"-" desc:"compute backend for the data-parallel loops"`
	WtsFile  string            `desc:"filename of last weights file loaded or saved"`
	MetaData map[string]string `desc:"optional metadata that is saved in network weights files"`
}

// NewNetwork validates the params and returns a network with allocated but
// uninitialized parameters -- call InitWts before use.
// If bk is nil, a CPU backend is used.
func NewNetwork(name string, pr *Params, bk *Backend) (*Network, error) {
	if err := pr.Validate(); err != nil {
		return nil, err
	}
	if bk == nil {
		var err error
		bk, err = NewBackend(CPU, 1)
		if err != nil {
			return nil, err
		}
	}
	nt := &Network{Nm: name, Params: *pr, Backend: bk}
	nt.Build()
	return nt, nil
}

// Build allocates all the parameters according to Params
func (nt *Network) Build() {
	pr := &nt.Params
	wd := pr.Widths()
	nin := 1
	sz := pr.ImgSize
	for li := range nt.Convs {
		cl := &nt.Convs[li]
		cl.Config(fmt.Sprintf("Conv%d", li+1), nin, wd[li], sz)
		nin = wd[li]
		sz = cl.OutSize
	}
	ne := pr.NEmbed()
	nc := pr.NClass
	nt.W.Init("W", []int{ne, nc}, []string{"Embed", "Class"})
	if pr.Alpha == Yoked {
		nt.Alpha.Init("Alpha", []int{1}, []string{"Alpha"})
	} else {
		nt.Alpha.Init("Alpha", []int{ne, nc}, []string{"Embed", "Class"})
	}
	nt.Eta.Init("Eta", []int{1}, []string{"Eta"})
}

// Name returns the network name
func (nt *Network) Name() string { return nt.Nm }

// AllParams returns all the trainable parameters, in a fixed order:
// conv weights and biases from the input up, then W, Alpha, Eta.
func (nt *Network) AllParams() []*Param {
	prs := make([]*Param, 0, 2*NConv+3)
	for li := range nt.Convs {
		prs = append(prs, &nt.Convs[li].Wt, &nt.Convs[li].Bias)
	}
	return append(prs, &nt.W, &nt.Alpha, &nt.Eta)
}

// ParamByName returns the parameter with given name, or nil
func (nt *Network) ParamByName(name string) *Param {
	for _, pr := range nt.AllParams() {
		if pr.Name == name {
			return pr
		}
	}
	return nil
}

// ZeroGrad resets all the gradients to 0
func (nt *Network) ZeroGrad() {
	for _, pr := range nt.AllParams() {
		pr.ZeroGrad()
	}
}

// rndVal draws one value from rp using rnd
func rndVal(rp *erand.RndParams, rnd *rand.Rand) float32 {
	switch rp.Dist {
	case erand.Uniform:
		return float32(rp.Mean + rp.Var*2*(rnd.Float64()-0.5))
	case erand.Gaussian:
		return float32(rp.Mean + rp.Var*rnd.NormFloat64())
	default:
		return float32(rp.Mean)
	}
}

// InitWts initializes all the trainable parameters from rnd
func (nt *Network) InitWts(rnd *rand.Rand) {
	pr := &nt.Params
	for li := range nt.Convs {
		nt.Convs[li].InitWts(rnd)
	}
	for i := range nt.W.Val.Values {
		nt.W.Val.Values[i] = rndVal(&pr.WtInit, rnd)
	}
	if pr.Alpha == Yoked {
		nt.Alpha.Val.Values[0] = float32(pr.AlphaInit.Mean + pr.AlphaInit.Var)
	} else {
		for i := range nt.Alpha.Val.Values {
			nt.Alpha.Val.Values[i] = rndVal(&pr.AlphaInit, rnd)
		}
	}
	nt.Eta.Val.Values[0] = pr.EtaInit
	nt.ZeroGrad()
}

// InitialZeroHebb returns an all-zero trace [NEmbed, NClass], to be used at
// the start of every episode.
func (nt *Network) InitialZeroHebb() *etensor.Float32 {
	return etensor.NewFloat32([]int{nt.Params.NEmbed(), nt.Params.NClass}, nil, []string{"Embed", "Class"})
}

//////////////////////////////////////////////////////////////////////////////////////
//  Forward step

// stepState holds everything from one forward step needed by the backward pass
type stepState struct {
	Acts [NConv + 1][]float32 // Acts[0] is the image, Acts[l+1] the output of conv l
	Hebb []float32            // trace before the step
	Out  []float32            // softmax output
}

// alloc sizes all the slices for the network
func (st *stepState) alloc(nt *Network) {
	st.Acts[0] = make([]float32, nt.Convs[0].InLen())
	for li := range nt.Convs {
		st.Acts[li+1] = make([]float32, nt.Convs[li].OutLen())
	}
	st.Hebb = make([]float32, nt.Params.NEmbed()*nt.Params.NClass)
	st.Out = make([]float32, nt.Params.NClass)
}

// Embed returns the embedding = output of the last conv layer
func (st *stepState) Embed() []float32 {
	return st.Acts[NConv]
}

// checkStep checks the sizes of the step inputs
func (nt *Network) checkStep(img, lbl, hebb *etensor.Float32) error {
	pr := &nt.Params
	if n := len(img.Values); n != pr.ImgSize*pr.ImgSize {
		return fmt.Errorf("plast: image has %d values, expected %d x %d", n, pr.ImgSize, pr.ImgSize)
	}
	if n := len(lbl.Values); n != pr.NClass {
		return fmt.Errorf("plast: label has %d values, expected %d", n, pr.NClass)
	}
	if n := len(hebb.Values); n != pr.NEmbed()*pr.NClass {
		return fmt.Errorf("plast: hebb has %d values, expected %d x %d", n, pr.NEmbed(), pr.NClass)
	}
	return nil
}

// forward runs one step into st, which must be allocated, and writes the
// updated trace into nhebb (which may not alias hebb).
func (nt *Network) forward(img, lbl, hebb []float32, st *stepState, nhebb []float32) {
	pr := &nt.Params
	copy(st.Acts[0], img)
	copy(st.Hebb, hebb)
	for li := range nt.Convs {
		nt.Convs[li].Forward(st.Acts[li], st.Acts[li+1], pr.Activ, nt.Backend)
	}
	x := st.Embed()
	ne := pr.NEmbed()
	nc := pr.NClass
	w := nt.W.Val.Values
	alpha := nt.Alpha.Val.Values
	yoked := pr.Alpha == Yoked
	y := st.Out
	for j := 0; j < nc; j++ {
		y[j] = pr.LabelGain * lbl[j]
	}
	for i := 0; i < ne; i++ {
		xi := x[i]
		for j := 0; j < nc; j++ {
			ij := i*nc + j
			a := alpha[0]
			if !yoked {
				a = alpha[ij]
			}
			y[j] += xi * (w[ij] + a*hebb[ij])
		}
	}
	Softmax(y)

	eta := nt.Eta.Val.Values[0]
	switch pr.Rule {
	case Oja:
		for i := 0; i < ne; i++ {
			for j := 0; j < nc; j++ {
				ij := i*nc + j
				nhebb[ij] = hebb[ij] + eta*(x[i]-hebb[ij]*y[j])*y[j]
			}
		}
	default:
		for i := 0; i < ne; i++ {
			for j := 0; j < nc; j++ {
				ij := i*nc + j
				nhebb[ij] = (1-eta)*hebb[ij] + eta*x[i]*y[j]
			}
		}
	}
}

// Step processes one image and label given the current trace, returning the
// output probabilities [NClass] and the updated trace.  Neither the inputs nor
// the network are modified.
func (nt *Network) Step(img, lbl, hebb *etensor.Float32) (out, nhebb *etensor.Float32, err error) {
	if err = nt.checkStep(img, lbl, hebb); err != nil {
		return
	}
	st := &stepState{}
	st.alloc(nt)
	nhebb = nt.InitialZeroHebb()
	nt.forward(img.Values, lbl.Values, hebb.Values, st, nhebb.Values)
	out = etensor.NewFloat32([]int{nt.Params.NClass}, nil, []string{"Class"})
	copy(out.Values, st.Out)
	return
}

// Softmax replaces z with softmax(z), in place
func Softmax(z []float32) {
	mx := z[0]
	for _, v := range z[1:] {
		mx = math32.Max(mx, v)
	}
	sum := float32(0)
	for i, v := range z {
		z[i] = math32.Exp(v - mx)
		sum += z[i]
	}
	for i := range z {
		z[i] /= sum
	}
}

// SizeReport returns a string reporting the shape, number of elements and
// memory of each trainable parameter (values plus gradients).
func (nt *Network) SizeReport() string {
	var b strings.Builder
	tot := 0
	for _, pr := range nt.AllParams() {
		n := pr.Len()
		tot += n
		fmt.Fprintf(&b, "%14s:\t Shape: %v\t Elems: %d\t Mem: %v\n", pr.Name, pr.Val.Shapes(), n, (datasize.ByteSize)(n*4*2).HumanReadable())
	}
	pr := &nt.Params
	fmt.Fprintf(&b, "\n%14s:\t %d x %d, %v alpha: %d coefficients\n", "Plastic", pr.NEmbed(), pr.NClass, pr.Alpha, pr.NAlpha())
	fmt.Fprintf(&b, "%14s:\t Elems: %d\t Mem: %v\n", nt.Nm, tot, (datasize.ByteSize)(tot*4*2).HumanReadable())
	return b.String()
}
