// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"math/rand"

	"github.com/chewxy/math32"
)

// ConvLayer is a valid (unpadded) 3x3 stride-2 convolution followed by an
// activation function.  Activations are flat [NFeat, Size, Size] slices.
type ConvLayer struct {
	Name    string `desc:"name of the layer"`
	NIn     int    `desc:"number of input feature maps"`
	NOut    int    `desc:"number of output feature maps"`
	InSize  int    `desc:"side of the input maps"`
	OutSize int    `desc:"side of the output maps"`
	Wt      Param  `desc:"filter weights [NOut, NIn, 3, 3]"`
	Bias    Param  `desc:"biases [NOut]"`
}

// Config sets the dimensions and allocates the parameters
func (cl *ConvLayer) Config(name string, nin, nout, insz int) {
	cl.Name = name
	cl.NIn = nin
	cl.NOut = nout
	cl.InSize = insz
	cl.OutSize = ConvOut(insz)
	cl.Wt.Init(name+".Wt", []int{nout, nin, KernSize, KernSize}, []string{"Out", "In", "Y", "X"})
	cl.Bias.Init(name+".Bias", []int{nout}, []string{"Out"})
}

// InLen is the length of the flat input
func (cl *ConvLayer) InLen() int {
	return cl.NIn * cl.InSize * cl.InSize
}

// OutLen is the length of the flat output
func (cl *ConvLayer) OutLen() int {
	return cl.NOut * cl.OutSize * cl.OutSize
}

// InitWts initializes weights and biases uniformly in +/- 1/sqrt(fan-in)
func (cl *ConvLayer) InitWts(rnd *rand.Rand) {
	bound := 1 / math32.Sqrt(float32(cl.NIn*KernSize*KernSize))
	for i := range cl.Wt.Val.Values {
		cl.Wt.Val.Values[i] = bound * (2*rnd.Float32() - 1)
	}
	for i := range cl.Bias.Val.Values {
		cl.Bias.Val.Values[i] = bound * (2*rnd.Float32() - 1)
	}
}

// Forward computes out = act(conv(in) + bias), parallel over output maps
func (cl *ConvLayer) Forward(in, out []float32, act ActFuns, bk *Backend) {
	isz := cl.InSize
	osz := cl.OutSize
	ksz := KernSize * KernSize
	wts := cl.Wt.Val.Values
	bias := cl.Bias.Val.Values
	bk.ParFor(cl.NOut, func(o int) {
		wo := wts[o*cl.NIn*ksz : (o+1)*cl.NIn*ksz]
		for y := 0; y < osz; y++ {
			for x := 0; x < osz; x++ {
				sum := bias[o]
				for c := 0; c < cl.NIn; c++ {
					wc := wo[c*ksz : (c+1)*ksz]
					ic := in[c*isz*isz:]
					for ky := 0; ky < KernSize; ky++ {
						row := (Stride*y + ky) * isz
						for kx := 0; kx < KernSize; kx++ {
							sum += wc[ky*KernSize+kx] * ic[row+Stride*x+kx]
						}
					}
				}
				out[(o*osz+y)*osz+x] = act.Act(sum)
			}
		}
	}, "ConvForward")
}

// Backward accumulates the filter and bias gradients given the layer input,
// its output, and the gradient wrt the output.  dOut is overwritten with the
// gradient wrt the net input.  If dIn is non-nil it is set to the gradient wrt
// the layer input.
func (cl *ConvLayer) Backward(in, out, dOut, dIn []float32, act ActFuns, bk *Backend) {
	isz := cl.InSize
	osz := cl.OutSize
	ksz := KernSize * KernSize
	for i, y := range out {
		dOut[i] *= act.Deriv(y)
	}
	dwts := cl.Wt.Grad.Values
	dbias := cl.Bias.Grad.Values
	bk.ParFor(cl.NOut, func(o int) {
		dwo := dwts[o*cl.NIn*ksz : (o+1)*cl.NIn*ksz]
		do := dOut[o*osz*osz : (o+1)*osz*osz]
		for _, d := range do {
			dbias[o] += d
		}
		for c := 0; c < cl.NIn; c++ {
			ic := in[c*isz*isz:]
			for ky := 0; ky < KernSize; ky++ {
				for kx := 0; kx < KernSize; kx++ {
					sum := float32(0)
					for y := 0; y < osz; y++ {
						row := (Stride*y + ky) * isz
						for x := 0; x < osz; x++ {
							sum += do[y*osz+x] * ic[row+Stride*x+kx]
						}
					}
					dwo[c*ksz+ky*KernSize+kx] += sum
				}
			}
		}
	}, "ConvDWt")
	if dIn == nil {
		return
	}
	wts := cl.Wt.Val.Values
	bk.ParFor(cl.NIn, func(c int) {
		dc := dIn[c*isz*isz : (c+1)*isz*isz]
		for i := range dc {
			dc[i] = 0
		}
		for o := 0; o < cl.NOut; o++ {
			wc := wts[(o*cl.NIn+c)*ksz : (o*cl.NIn+c+1)*ksz]
			do := dOut[o*osz*osz : (o+1)*osz*osz]
			for y := 0; y < osz; y++ {
				for x := 0; x < osz; x++ {
					d := do[y*osz+x]
					if d == 0 {
						continue
					}
					for ky := 0; ky < KernSize; ky++ {
						row := (Stride*y + ky) * isz
						for kx := 0; kx < KernSize; kx++ {
							dc[row+Stride*x+kx] += wc[ky*KernSize+kx] * d
						}
					}
				}
			}
		}
	}, "ConvDIn")
}
