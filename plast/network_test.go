// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emer/etable/etensor"
	"github.com/goki/gi/gi"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-6)

func testParams(nclass, nfeat int, rule Rules, alpha AlphaModes) *Params {
	pr := &Params{}
	pr.Defaults()
	pr.NClass = nclass
	pr.NFeat = nfeat
	pr.Rule = rule
	pr.Alpha = alpha
	return pr
}

func newTestNet(t *testing.T, pr *Params, seed int64) *Network {
	t.Helper()
	nt, err := NewNetwork("Test", pr, nil)
	if err != nil {
		t.Fatal(err)
	}
	nt.InitWts(rand.New(rand.NewSource(seed)))
	return nt
}

func randImage(rnd *rand.Rand, sz int) *etensor.Float32 {
	img := etensor.NewFloat32([]int{sz, sz}, nil, []string{"Y", "X"})
	for i := range img.Values {
		img.Values[i] = rnd.Float32()
	}
	return img
}

func oneHot(n, idx int) *etensor.Float32 {
	lbl := etensor.NewFloat32([]int{n}, nil, []string{"Class"})
	if idx >= 0 {
		lbl.Values[idx] = 1
	}
	return lbl
}

func TestConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		set  func(pr *Params)
	}{
		{"activation", func(pr *Params) { pr.Activ = ActFunsN }},
		{"rule", func(pr *Params) { pr.Rule = RulesN }},
		{"alpha", func(pr *Params) { pr.Alpha = AlphaModesN }},
		{"negative alpha", func(pr *Params) { pr.Alpha = -1 }},
		{"image size", func(pr *Params) { pr.ImgSize = 28 }},
		{"small image", func(pr *Params) { pr.ImgSize = 2 }},
		{"classes", func(pr *Params) { pr.NClass = 0 }},
		{"features", func(pr *Params) { pr.NFeat = 0 }},
		{"flare", func(pr *Params) { pr.Flare = true; pr.NFeat = 30 }},
	}
	for _, cs := range cases {
		pr := &Params{}
		pr.Defaults()
		cs.set(pr)
		_, err := NewNetwork("Bad", pr, nil)
		if err == nil {
			t.Errorf("%s: expected configuration error", cs.name)
			continue
		}
		if !errors.Is(err, ErrConfig) {
			t.Errorf("%s: error %v is not ErrConfig", cs.name, err)
		}
	}
	pr := &Params{}
	pr.Defaults()
	for _, sz := range []int{31, 32} {
		pr.ImgSize = sz
		if err := pr.Validate(); err != nil {
			t.Errorf("ImgSize %d should be valid: %v", sz, err)
		}
	}
	if _, err := NewBackend(BackendsN, 0); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig for bad backend, got %v", err)
	}
}

func TestEnumStrings(t *testing.T) {
	var af ActFuns
	if err := af.SetString("selu"); err != nil || af != SELU {
		t.Errorf("SetString selu: %v %v", af, err)
	}
	if err := af.FromString("ReLU"); err != nil || af != ReLU {
		t.Errorf("FromString ReLU: %v %v", af, err)
	}
	var rl Rules
	if err := rl.UnmarshalText([]byte("oja")); err != nil || rl != Oja {
		t.Errorf("UnmarshalText oja: %v %v", rl, err)
	}
	var am AlphaModes
	if err := am.SetString("clamped"); err == nil {
		t.Errorf("expected error for unknown alpha mode")
	}
	var bk Backends
	for _, nm := range []string{"BackendsN", "backendsn"} {
		if err := bk.SetString(nm); err == nil {
			t.Errorf("SetString %s: expected error for the count value", nm)
		}
	}
	if err := rl.UnmarshalText([]byte("RulesN")); err == nil {
		t.Errorf("UnmarshalText RulesN: expected error")
	}
	if Yoked.String() != "Yoked" {
		t.Errorf("Yoked.String() = %s", Yoked.String())
	}
}

func TestShapes(t *testing.T) {
	pr := testParams(5, 64, Hebb, Free)
	nt := newTestNet(t, pr, 1)
	outs := []int{15, 7, 3, 1}
	for li := range nt.Convs {
		if nt.Convs[li].OutSize != outs[li] {
			t.Errorf("conv %d out size %d != %d", li, nt.Convs[li].OutSize, outs[li])
		}
	}
	hebb := nt.InitialZeroHebb()
	shp := hebb.Shapes()
	if len(shp) != 2 || shp[0] != 64 || shp[1] != 5 {
		t.Errorf("hebb shape %v, expected [64 5]", shp)
	}
	for i, v := range hebb.Values {
		if v != 0 {
			t.Errorf("hebb[%d] = %g, expected 0", i, v)
		}
	}
	if nt.Alpha.Len() != 64*5 {
		t.Errorf("free alpha len %d", nt.Alpha.Len())
	}
	for i, a := range nt.Alpha.Val.Values {
		if a < 0 || a > 0.01 {
			t.Errorf("free alpha[%d] = %g out of [0, .01]", i, a)
		}
	}
	if nt.Eta.Val.Values[0] != 0.01 {
		t.Errorf("eta init %g", nt.Eta.Val.Values[0])
	}

	ypr := testParams(5, 64, Hebb, Yoked)
	ypr.Flare = true
	ynt := newTestNet(t, ypr, 1)
	if ynt.Alpha.Len() != ypr.NAlpha() || ynt.Alpha.Len() != 1 || math.Abs(float64(ynt.Alpha.Val.Values[0])-0.01) > 1e-7 {
		t.Errorf("yoked alpha %v", ynt.Alpha.Val.Values)
	}
	wd := []int{16, 16, 32, 64}
	for li := range ynt.Convs {
		if ynt.Convs[li].NOut != wd[li] {
			t.Errorf("flare conv %d width %d != %d", li, ynt.Convs[li].NOut, wd[li])
		}
	}
	if len(nt.AllParams()) != 2*NConv+3 {
		t.Errorf("AllParams len %d", len(nt.AllParams()))
	}
	if nt.Alpha.Len() != pr.NAlpha() {
		t.Errorf("alpha has %d values, NAlpha = %d", nt.Alpha.Len(), pr.NAlpha())
	}
	if rep := nt.SizeReport(); !strings.Contains(rep, fmt.Sprintf("alpha: %d coefficients", pr.NAlpha())) {
		t.Errorf("SizeReport missing alpha count:\n%s", rep)
	}
}

func TestZeroUnroll(t *testing.T) {
	nt := newTestNet(t, testParams(5, 8, Hebb, Free), 1)
	ur := NewUnroll(nt)
	if ur.Out() != nil {
		t.Errorf("Out should be nil with no steps")
	}
	if err := ur.Backward(make([]float32, 5)); err == nil {
		t.Errorf("Backward with no steps should fail")
	}
}

func TestStepPure(t *testing.T) {
	nt := newTestNet(t, testParams(5, 8, Oja, Free), 2)
	rnd := rand.New(rand.NewSource(3))
	img := randImage(rnd, 31)
	lbl := oneHot(5, 2)
	hebb := nt.InitialZeroHebb()
	out1, h1, err := nt.Step(img, lbl, hebb)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range hebb.Values {
		if v != 0 {
			t.Fatalf("input hebb modified at %d", i)
		}
	}
	out2, h2, _ := nt.Step(img, lbl, hebb)
	for i := range out1.Values {
		if out1.Values[i] != out2.Values[i] {
			t.Errorf("output differs on repeat at %d", i)
		}
	}
	for i := range h1.Values {
		if h1.Values[i] != h2.Values[i] {
			t.Errorf("trace differs on repeat at %d", i)
		}
	}
	// label clamps the output
	if out1.Values[2] < 0.999 {
		t.Errorf("labeled output %v not clamped to class 2", out1.Values)
	}
	sum := float32(0)
	for _, v := range out1.Values {
		sum += v
	}
	if math.Abs(float64(sum-1)) > 1e-5 {
		t.Errorf("softmax sums to %g", sum)
	}
	if _, _, err := nt.Step(img, oneHot(4, 0), hebb); err == nil {
		t.Errorf("expected error for wrong label size")
	}
}

func TestEtaZero(t *testing.T) {
	for _, rule := range []Rules{Hebb, Oja} {
		nt := newTestNet(t, testParams(5, 8, rule, Free), 4)
		nt.Eta.Val.Values[0] = 0
		rnd := rand.New(rand.NewSource(5))
		hebb := nt.InitialZeroHebb()
		for i := range hebb.Values {
			hebb.Values[i] = rnd.Float32() - 0.5
		}
		start := append([]float32(nil), hebb.Values...)
		for s := 0; s < 6; s++ {
			lbl := oneHot(5, s%5)
			if s == 5 {
				lbl = oneHot(5, -1)
			}
			_, nh, err := nt.Step(randImage(rnd, 31), lbl, hebb)
			if err != nil {
				t.Fatal(err)
			}
			hebb = nh
		}
		for i, v := range hebb.Values {
			if v != start[i] {
				t.Errorf("%v: eta=0 trace changed at %d: %g != %g", rule, i, v, start[i])
				break
			}
		}
	}
}

func TestTraceRules(t *testing.T) {
	// one step from zero: hebb = eta x y for Hebb, eta x y^2 for Oja
	for _, rule := range []Rules{Hebb, Oja} {
		nt := newTestNet(t, testParams(3, 8, rule, Free), 6)
		nt.Eta.Val.Values[0] = 0.5
		ur := NewUnroll(nt)
		img := randImage(rand.New(rand.NewSource(7)), 31)
		_, nh, err := ur.Step(img, oneHot(3, 1), nt.InitialZeroHebb())
		if err != nil {
			t.Fatal(err)
		}
		st := ur.Steps[0]
		x := st.Embed()
		y := st.Out
		for i := 0; i < 8; i++ {
			for j := 0; j < 3; j++ {
				trg := 0.5 * x[i] * y[j]
				if rule == Oja {
					trg *= y[j]
				}
				if dif := math.Abs(float64(nh.Values[i*3+j] - trg)); dif > float64(difTol) {
					t.Errorf("%v: hebb[%d,%d] = %g, expected %g", rule, i, j, nh.Values[i*3+j], trg)
				}
			}
		}
	}
}

// gradEpisode is a small fixed episode for gradient checking
type gradEpisode struct {
	imgs []*etensor.Float32
	lbls []*etensor.Float32
	trg  []float32
}

func newGradEpisode(nclass int, seed int64) *gradEpisode {
	rnd := rand.New(rand.NewSource(seed))
	ep := &gradEpisode{}
	for c := 0; c < nclass; c++ {
		ep.imgs = append(ep.imgs, randImage(rnd, 31))
		ep.lbls = append(ep.lbls, oneHot(nclass, c))
	}
	// a delay step then the query: a noisy copy of class 1
	ep.imgs = append(ep.imgs, etensor.NewFloat32([]int{31, 31}, nil, nil))
	ep.lbls = append(ep.lbls, oneHot(nclass, -1))
	qry := etensor.NewFloat32([]int{31, 31}, nil, nil)
	for i, v := range ep.imgs[1].Values {
		qry.Values[i] = 0.8*v + 0.2*rnd.Float32()
	}
	ep.imgs = append(ep.imgs, qry)
	ep.lbls = append(ep.lbls, oneHot(nclass, -1))
	ep.trg = oneHot(nclass, 1).Values
	return ep
}

func (ep *gradEpisode) loss(t *testing.T, ur *Unroll, dy []float32) float64 {
	t.Helper()
	ur.Reset()
	hebb := ur.Net.InitialZeroHebb()
	var out *etensor.Float32
	var err error
	for s := range ep.imgs {
		out, hebb, err = ur.Step(ep.imgs[s], ep.lbls[s], hebb)
		if err != nil {
			t.Fatal(err)
		}
	}
	return BCELoss(out.Values, ep.trg, dy)
}

func TestGradients(t *testing.T) {
	cases := []struct {
		activ ActFuns
		rule  Rules
		alpha AlphaModes
	}{
		{Tanh, Hebb, Free},
		{Tanh, Oja, Free},
		{Tanh, Hebb, Yoked},
		{Tanh, Oja, Yoked},
		{ReLU, Hebb, Free},
		{ReLU, Oja, Free},
		{SELU, Hebb, Free},
		{SELU, Oja, Yoked},
	}
	const eps = 1.0e-3
	for _, cs := range cases {
		pr := testParams(3, 4, cs.rule, cs.alpha)
		pr.Activ = cs.activ
		pr.WtInit.Var = 0.3
		pr.AlphaInit.Mean = 0.5
		pr.AlphaInit.Var = 0.2
		pr.EtaInit = 0.3
		nt := newTestNet(t, pr, 8)
		ep := newGradEpisode(3, 9)
		ur := NewUnroll(nt)
		dy := make([]float32, 3)
		ep.loss(t, ur, dy)
		nt.ZeroGrad()
		if err := ur.Backward(dy); err != nil {
			t.Fatal(err)
		}
		for _, prm := range nt.AllParams() {
			mi := 0
			for i, g := range prm.Grad.Values {
				if math.Abs(float64(g)) > math.Abs(float64(prm.Grad.Values[mi])) {
					mi = i
				}
			}
			ana := float64(prm.Grad.Values[mi])
			orig := prm.Val.Values[mi]
			prm.Val.Values[mi] = orig + eps
			lp := ep.loss(t, ur, nil)
			prm.Val.Values[mi] = orig - eps
			lm := ep.loss(t, ur, nil)
			prm.Val.Values[mi] = orig
			num := (lp - lm) / (2 * eps)
			if math.Abs(num-ana) > 0.05*math.Abs(ana)+2e-3 {
				t.Errorf("%v %v %v %s[%d]: analytic grad %g != numeric %g", cs.activ, cs.rule, cs.alpha, prm.Name, mi, ana, num)
			}
		}
		if nt.Eta.Grad.Values[0] == 0 {
			t.Errorf("%v %v %v: zero eta gradient", cs.activ, cs.rule, cs.alpha)
		}
	}
}

func TestThreadsMatchCPU(t *testing.T) {
	pr := testParams(3, 8, Hebb, Free)
	cnt := newTestNet(t, pr, 10)
	bk, err := NewBackend(Threads, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer bk.Close()
	tnt, err := NewNetwork("Thr", pr, bk)
	if err != nil {
		t.Fatal(err)
	}
	tnt.InitWts(rand.New(rand.NewSource(10)))
	ep := newGradEpisode(3, 11)
	grads := make([][]float32, 2)
	losses := make([]float64, 2)
	for ni, nt := range []*Network{cnt, tnt} {
		ur := NewUnroll(nt)
		dy := make([]float32, 3)
		losses[ni] = ep.loss(t, ur, dy)
		nt.ZeroGrad()
		ur.Backward(dy)
		for _, prm := range nt.AllParams() {
			grads[ni] = append(grads[ni], prm.Grad.Values...)
		}
	}
	if losses[0] != losses[1] {
		t.Errorf("threaded loss %g != cpu loss %g", losses[1], losses[0])
	}
	for i := range grads[0] {
		if grads[0][i] != grads[1][i] {
			t.Errorf("threaded grad differs at %d: %g != %g", i, grads[1][i], grads[0][i])
			break
		}
	}
}

func TestBCELoss(t *testing.T) {
	y := []float32{0.25, 0.5, 0.25}
	trg := []float32{0, 1, 0}
	dy := make([]float32, 3)
	loss := BCELoss(y, trg, dy)
	exp := -(2*math.Log(0.75) + math.Log(0.5)) / 3
	if math.Abs(loss-exp) > 1e-6 {
		t.Errorf("loss %g != %g", loss, exp)
	}
	if math.Abs(float64(dy[1])-(-0.5/0.25/3)) > 1e-6 {
		t.Errorf("dy[1] = %g", dy[1])
	}
	if l := BCELoss([]float32{0, 1}, []float32{1, 0}, nil); l != 100 {
		t.Errorf("clamped loss = %g, expected 100", l)
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	pr := testParams(5, 8, Oja, Free)
	src := newTestNet(t, pr, 12)
	src.MetaData = map[string]string{"Iter": "42"}
	var buf bytes.Buffer
	if err := src.WriteWtsJSON(&buf); err != nil {
		t.Fatal(err)
	}
	dst := newTestNet(t, pr, 13)
	if err := dst.ReadWtsJSON(&buf); err != nil {
		t.Fatal(err)
	}
	checkSame := func(a, b *Network) {
		t.Helper()
		pa := a.AllParams()
		pb := b.AllParams()
		for pi := range pa {
			for i := range pa[pi].Val.Values {
				if pa[pi].Val.Values[i] != pb[pi].Val.Values[i] {
					t.Errorf("%s[%d]: %g != %g", pa[pi].Name, i, pb[pi].Val.Values[i], pa[pi].Val.Values[i])
					return
				}
			}
		}
	}
	checkSame(src, dst)
	if dst.MetaData["Iter"] != "42" {
		t.Errorf("metadata not restored: %v", dst.MetaData)
	}

	fnm := filepath.Join(t.TempDir(), "test.wts.gz")
	if err := src.SaveWtsJSON(gi.FileName(fnm)); err != nil {
		t.Fatal(err)
	}
	gz := newTestNet(t, pr, 14)
	if err := gz.OpenWtsJSON(gi.FileName(fnm)); err != nil {
		t.Fatal(err)
	}
	checkSame(src, gz)

	// shape mismatch is an error
	other := newTestNet(t, testParams(4, 8, Oja, Free), 15)
	buf.Reset()
	if err := src.WriteWtsJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if err := other.ReadWtsJSON(&buf); err == nil {
		t.Errorf("expected shape mismatch error")
	}
}

// failWriter fails every write after the first n bytes
type failWriter struct {
	n int
}

func (fw *failWriter) Write(p []byte) (int, error) {
	if len(p) > fw.n {
		k := fw.n
		fw.n = 0
		return k, errWriteFull
	}
	fw.n -= len(p)
	return len(p), nil
}

var errWriteFull = errors.New("device full")

func TestSaveWtsErrors(t *testing.T) {
	nt := newTestNet(t, testParams(3, 4, Hebb, Free), 16)
	if err := nt.WriteWtsJSON(&failWriter{n: 100}); !errors.Is(err, errWriteFull) {
		t.Errorf("WriteWtsJSON: expected write error, got %v", err)
	}
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	nt.WtsFile = ""
	if err := nt.SaveWtsJSON("/dev/full"); err == nil {
		t.Errorf("expected save error on a full device")
	}
	if nt.WtsFile != "" {
		t.Errorf("WtsFile set to %q after failed save", nt.WtsFile)
	}
}

func TestTimerReport(t *testing.T) {
	bk, err := NewBackend(Threads, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer bk.Close()
	nt, err := NewNetwork("Timed", testParams(3, 4, Hebb, Free), bk)
	if err != nil {
		t.Fatal(err)
	}
	nt.InitWts(rand.New(rand.NewSource(17)))
	ep := newGradEpisode(3, 18)
	ur := NewUnroll(nt)
	dy := make([]float32, 3)
	ep.loss(t, ur, dy)
	nt.ZeroGrad()
	if err := ur.Backward(dy); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	bk.TimerReport(&buf)
	rep := buf.String()
	for _, nm := range []string{"ConvForward", "ConvDWt", "ConvDIn", BackwardTimer, "Thr"} {
		if !strings.Contains(rep, nm) {
			t.Errorf("TimerReport missing %s:\n%s", nm, rep)
		}
	}
	if bk.FunTimes[BackwardTimer].N != 1 {
		t.Errorf("Backward timer calls = %d, expected 1", bk.FunTimes[BackwardTimer].N)
	}
	bk.TimerReset()
	for nm, ft := range bk.FunTimes {
		if ft.N != 0 || ft.Total != 0 {
			t.Errorf("%s timer not reset: %d calls %v", nm, ft.N, ft.Total)
		}
	}
}
