// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/emer/emergent/params"
	"github.com/emer/plastic/episode"
	"github.com/emer/plastic/plast"
	"github.com/goki/gi/gi"
)

// Difference to tolerate
const difTol = 1.0e-6

func testConfig() *Config {
	cf := &Config{}
	cf.Defaults()
	cf.RunID = "test"
	cf.NClasses = 3
	cf.NFeat = 4
	cf.NIter = 8
	cf.TestEvery = 2
	cf.SaveEvery = 4
	cf.Lrate = 1e-3
	cf.Seed = 1
	return cf
}

func testIndex(t *testing.T) *episode.MemIndex {
	t.Helper()
	idx, err := episode.NewSynthIndex(12, 2, 31, 4, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func newTestSession(t *testing.T, cf *Config, sink Sink) *Session {
	t.Helper()
	ss, err := NewSession(cf, testIndex(t), sink)
	if err != nil {
		t.Fatal(err)
	}
	ss.Verbose = false
	t.Cleanup(ss.Close)
	return ss
}

// paramVals returns a copy of all parameter values of the network
func paramVals(nt *plast.Network) [][]float32 {
	var vals [][]float32
	for _, pr := range nt.AllParams() {
		vals = append(vals, append([]float32(nil), pr.Val.Values...))
	}
	return vals
}

func TestConfigErrors(t *testing.T) {
	cf := &Config{}
	cf.Defaults()
	if err := cf.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("missing RunID: expected ErrConfig, got %v", err)
	}
	cf.RunID = "a"
	if err := cf.Validate(); err != nil {
		t.Errorf("defaults with RunID: %v", err)
	}
	bad := []func(cf *Config){
		func(cf *Config) { cf.ImgSize = 28 },
		func(cf *Config) { cf.Activ = plast.ActFunsN },
		func(cf *Config) { cf.Rule = -1 },
		func(cf *Config) { cf.NShots = 0 },
		func(cf *Config) { cf.IPD = -1 },
		func(cf *Config) { cf.TestEvery = 0 },
		func(cf *Config) { cf.Lrate = 0 },
		func(cf *Config) { cf.RunID = "a/b" },
		func(cf *Config) { cf.Flare = true; cf.NFeat = 6 },
	}
	for i, fun := range bad {
		cf := testConfig()
		fun(cf)
		if err := cf.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: expected ErrConfig, got %v", i, err)
		}
		if _, err := NewSession(cf, testIndex(t), nil); !errors.Is(err, ErrConfig) {
			t.Errorf("case %d: NewSession expected ErrConfig, got %v", i, err)
		}
	}
	cf = testConfig()
	cf.ImgSize = 30
	if err := cf.Validate(); !errors.Is(err, plast.ErrConfig) {
		t.Errorf("expected wrapped plast.ErrConfig, got %v", err)
	}
	cf = testConfig()
	cf.NClasses = 5 // test pool has 4
	if _, err := NewSession(cf, testIndex(t), nil); !errors.Is(err, ErrConfig) || !errors.Is(err, episode.ErrPoolSize) {
		t.Errorf("expected ErrConfig and ErrPoolSize, got %v", err)
	}
}

func TestSuffix(t *testing.T) {
	a := testConfig()
	b := testConfig()
	if a.Suffix() != b.Suffix() {
		t.Errorf("equal configs give %q and %q", a.Suffix(), b.Suffix())
	}
	b.TestEvery = 7
	b.SaveEvery = 9
	b.MirrorDir = "x"
	if a.Suffix() != b.Suffix() {
		t.Errorf("cadences changed the suffix: %q vs %q", a.Suffix(), b.Suffix())
	}
	for i, fun := range []func(cf *Config){
		func(cf *Config) { cf.RunID = "other" },
		func(cf *Config) { cf.Seed = 2 },
		func(cf *Config) { cf.Rule = plast.Oja },
		func(cf *Config) { cf.NShots = 2 },
	} {
		c := testConfig()
		fun(c)
		if c.Suffix() == a.Suffix() {
			t.Errorf("case %d: suffix unchanged: %q", i, c.Suffix())
		}
	}
	exp := "Wactiv_tanh_alpha_free_flare_false_gamma_0.666_imgsize_31_ipd_0_lr_0.001_nbclasses_3_nbf_4_nbiter_8_nbshots_1_prestime_1_prestimetest_1_rule_hebb_steplr_1000000_rngseed_1_run_test"
	if a.Suffix() != exp {
		t.Errorf("Suffix() = %q, expected %q", a.Suffix(), exp)
	}
	a.ArchiveEvery = 4
	if nm := a.CheckpointName(3); nm != exp+"_4" {
		t.Errorf("archive name %q", nm)
	}
	if nm := a.CheckpointName(5); nm != exp {
		t.Errorf("non-archive name %q", nm)
	}
}

func TestEvalLeavesParams(t *testing.T) {
	cf := testConfig()
	cf.TestEvery = 1
	ss := newTestSession(t, cf, nil)
	before := paramVals(ss.Net)
	for i := 0; i < 3; i++ {
		if err := ss.Iterate(); err != nil {
			t.Fatal(err)
		}
	}
	after := paramVals(ss.Net)
	for pi := range before {
		for i := range before[pi] {
			if math.Float32bits(before[pi][i]) != math.Float32bits(after[pi][i]) {
				t.Fatalf("param %s[%d] changed on evaluation: %g -> %g", ss.Net.AllParams()[pi].Name, i, before[pi][i], after[pi][i])
			}
		}
	}
	if ss.Opt.NStep != 0 || ss.Sched.N != 0 {
		t.Errorf("optimizer stepped on evaluation: %d %d", ss.Opt.NStep, ss.Sched.N)
	}
	if len(ss.Losses) != 3 || ss.TstLog.Rows != 3 {
		t.Errorf("expected 3 evaluation losses and log rows, got %d %d", len(ss.Losses), ss.TstLog.Rows)
	}
}

func TestTrainChangesParams(t *testing.T) {
	cf := testConfig()
	cf.TestEvery = 100
	ss := newTestSession(t, cf, nil)
	before := paramVals(ss.Net)
	if err := ss.Iterate(); err != nil {
		t.Fatal(err)
	}
	after := paramVals(ss.Net)
	nchg := 0
	for pi := range before {
		for i := range before[pi] {
			if before[pi][i] != after[pi][i] {
				nchg++
			}
		}
	}
	if nchg == 0 {
		t.Errorf("training iteration changed no parameter")
	}
	if ss.Opt.NStep != 1 || ss.Sched.N != 1 {
		t.Errorf("optimizer steps %d, schedule steps %d, expected 1", ss.Opt.NStep, ss.Sched.N)
	}
	if len(ss.Losses) != 0 {
		t.Errorf("training iteration recorded an evaluation loss")
	}
}

func TestRunCheckpoints(t *testing.T) {
	cf := testConfig()
	cf.ArchiveEvery = 8
	sink := &MemSink{}
	ss := newTestSession(t, cf, sink)
	if err := ss.Run(); err != nil {
		t.Fatal(err)
	}
	if ss.Iter != 8 {
		t.Errorf("Iter = %d after Run", ss.Iter)
	}
	if len(sink.Snaps) != 2 {
		t.Fatalf("got %d snapshots, expected 2", len(sink.Snaps))
	}
	s0 := sink.Snaps[0]
	s1 := sink.Snaps[1]
	if s0.Iter != 3 || s1.Iter != 7 {
		t.Errorf("snapshot iters %d %d", s0.Iter, s1.Iter)
	}
	if len(s0.Losses) != 2 || len(s1.Losses) != 4 {
		t.Errorf("snapshot loss histories %d %d", len(s0.Losses), len(s1.Losses))
	}
	if s0.Name != cf.Suffix() || s1.Name != cf.Suffix()+"_8" {
		t.Errorf("snapshot names %q %q", s0.Name, s1.Name)
	}
	if !math.IsNaN(s0.PrevAvgLoss) || math.IsNaN(s1.PrevAvgLoss) {
		t.Errorf("previous averages %g %g", s0.PrevAvgLoss, s1.PrevAvgLoss)
	}
	if math.Abs(s1.PrevAvgLoss-s0.AvgLoss) > difTol {
		t.Errorf("second PrevAvgLoss %g != first AvgLoss %g", s1.PrevAvgLoss, s0.AvgLoss)
	}
	if s0.Config.RunID != "test" || s0.Net != nil {
		t.Errorf("snapshot config or net not as expected")
	}
	same := true
	for i, v := range s0.W.Values {
		if v != s1.W.Values[i] {
			same = false
		}
	}
	if same {
		t.Errorf("snapshots share W values")
	}
	if ss.SaveLog.Rows != 2 || ss.TstLog.Rows != 4 {
		t.Errorf("log rows %d %d", ss.SaveLog.Rows, ss.TstLog.Rows)
	}
	if iter := ss.TstLog.CellFloat("Iter", 3); iter != 7 {
		t.Errorf("last evaluation logged at %g", iter)
	}
}

// stopSink stops the session at the first checkpoint
type stopSink struct {
	ss *Session
}

func (st *stopSink) Save(snap *Snapshot) error {
	st.ss.StopNow = true
	return nil
}

func TestStopNow(t *testing.T) {
	cf := testConfig()
	sk := &stopSink{}
	ss := newTestSession(t, cf, sk)
	sk.ss = ss
	if err := ss.Run(); err != nil {
		t.Fatal(err)
	}
	if ss.Iter != cf.SaveEvery {
		t.Errorf("stopped at %d, expected %d", ss.Iter, cf.SaveEvery)
	}
}

type errSink struct{}

func (es *errSink) Save(snap *Snapshot) error { return os.ErrPermission }

func TestSinkError(t *testing.T) {
	ss := newTestSession(t, testConfig(), &errSink{})
	if err := ss.Run(); !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected sink error, got %v", err)
	}
	if ss.Iter != 3 {
		t.Errorf("run stopped at %d", ss.Iter)
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	mirror := filepath.Join(dir, "mirror")
	cf := testConfig()
	cf.NIter = 4
	fs := NewFileSink(filepath.Join(dir, "out"), mirror)
	ss := newTestSession(t, cf, fs)
	if err := ss.Run(); err != nil {
		t.Fatal(err)
	}
	for _, fn := range fs.Files(cf.Suffix()) {
		if _, err := os.Stat(fn); err != nil {
			t.Errorf("checkpoint file: %v", err)
		}
		if _, err := os.Stat(filepath.Join(mirror, filepath.Base(fn))); err != nil {
			t.Errorf("mirrored file: %v", err)
		}
	}
	fns := fs.Files(cf.Suffix())

	np := cf.NetParams()
	nt, err := plast.NewNetwork("Plastic", &np, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := nt.OpenWtsJSON(gi.FileName(fns[0])); err != nil {
		t.Fatal(err)
	}
	for i, v := range nt.W.Val.Values {
		if v != ss.Net.W.Val.Values[i] {
			t.Fatalf("reloaded W[%d] = %g, expected %g", i, v, ss.Net.W.Val.Values[i])
		}
	}

	rc := &Config{}
	if err := rc.OpenTOML(fns[2]); err != nil {
		t.Fatal(err)
	}
	if *rc != *cf {
		t.Errorf("config round trip:\n%+v\n%+v", *rc, *cf)
	}
}

func TestEvalStats(t *testing.T) {
	es := EvalStats{}
	es.Compute([]float32{0.1, 0.8, 0.1}, []float32{0, 1, 0})
	if math.Abs(es.MeanAbs-0.4/3) > difTol || math.Abs(es.MedianAbs-0.1) > difTol || math.Abs(es.MaxAbs-0.2) > difTol {
		t.Errorf("abs diffs %g %g %g", es.MeanAbs, es.MedianAbs, es.MaxAbs)
	}
	if math.Abs(es.Corr-1) > difTol {
		t.Errorf("Corr = %g, expected 1", es.Corr)
	}
	if !math.IsNaN(es.SignCorr) {
		t.Errorf("SignCorr with constant sign = %g, expected NaN", es.SignCorr)
	}
	if m := median([]float64{4, 1, 3, 2}); m != 2.5 {
		t.Errorf("even median %g", m)
	}
}

func TestLossAvg(t *testing.T) {
	la := LossAvg{}
	la.Init()
	for i := 0; i < 150; i++ {
		la.Add(float64(i))
	}
	if la.Avg() != 74.5 {
		t.Errorf("Avg = %g", la.Avg())
	}
	if la.AvgRecent() != 99.5 {
		t.Errorf("AvgRecent = %g", la.AvgRecent())
	}
	la.Checkpoint()
	if la.Prev != 74.5 || !math.IsNaN(la.Avg()) {
		t.Errorf("after checkpoint Prev %g Avg %g", la.Prev, la.Avg())
	}
}

func TestApplyParams(t *testing.T) {
	sets := params.Sets{
		{Name: "Base", Desc: "base", Sheets: params.Sheets{
			"Config": &params.Sheet{
				{Sel: "Config", Desc: "",
					Params: params.Params{
						"Config.Lrate": "0.01",
					}},
			},
		}},
		{Name: "FiveShot", Desc: "", Sheets: params.Sheets{
			"Config": &params.Sheet{
				{Sel: "Config", Desc: "",
					Params: params.Params{
						"Config.NShots": "5",
						"Config.Flare":  "true",
					}},
			},
		}},
	}
	cf := testConfig()
	if err := cf.ApplyParams(sets, "FiveShot", false); err != nil {
		t.Fatal(err)
	}
	if cf.Lrate != 0.01 || cf.NShots != 5 || !cf.Flare {
		t.Errorf("params not applied: %g %d %v", cf.Lrate, cf.NShots, cf.Flare)
	}
	if err := cf.ApplyParams(sets, "Missing", false); err == nil {
		t.Errorf("expected error for missing set")
	}

	sets = append(sets, &params.Set{Name: "Typo", Desc: "", Sheets: params.Sheets{
		"Config": &params.Sheet{
			{Sel: "Config", Desc: "",
				Params: params.Params{
					"Config.NShot": "3",
				}},
		},
	}})
	cf = testConfig()
	if err := cf.ApplyParams(sets, "Typo", false); !errors.Is(err, ErrConfig) {
		t.Errorf("misspelled param: expected ErrConfig, got %v", err)
	}
}

func TestDerivedParams(t *testing.T) {
	cf := testConfig()
	cf.NClasses = 4
	cf.NShots = 3
	cf.PresTime = 2
	cf.PresTimeTest = 3
	cf.IPD = 1
	cf.ImgSize = 40
	cf.Activ = plast.SELU
	cf.Rule = plast.Oja
	cf.Alpha = plast.Yoked
	cf.Flare = true
	cf.NFeat = 16

	ep := cf.EpisodeParams()
	exp := episode.Params{NClass: 4, NShots: 3, PresTime: 2, IPD: 1, PresTimeTest: 3, ImgSize: 40}
	if ep != exp {
		t.Errorf("episode params %+v, expected %+v", ep, exp)
	}

	np := cf.NetParams()
	if np.NClass != 4 || np.NFeat != 16 || np.ImgSize != 40 || !np.Flare ||
		np.Activ != plast.SELU || np.Rule != plast.Oja || np.Alpha != plast.Yoked {
		t.Errorf("net params not copied: %+v", np)
	}
	def := plast.Params{}
	def.Defaults()
	if np.LabelGain != def.LabelGain || np.EtaInit != def.EtaInit || np.WtInit != def.WtInit {
		t.Errorf("net params defaults lost: %+v", np)
	}
}
