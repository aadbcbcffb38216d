// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/emer/emergent/timer"
	"github.com/emer/empi/mpi"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/emer/plastic/episode"
	"github.com/emer/plastic/optim"
	"github.com/emer/plastic/plast"
)

// NReportVals is the max number of output values printed in evaluation reports
const NReportVals = 10

// Session is one training run: the network, its optimizer and schedule, the
// train and test environments, and the run statistics and logs.
type Session struct {
	Config   Config          `view:"inline" desc:"configuration of the run -- must not be changed after NewSession"`
	Net      *plast.Network  `view:"no-inline" desc:"the network being trained"`
	Unroll   *plast.Unroll   `view:"-" desc:"records the forward steps of the current episode for backprop"`
	Opt      *optim.Adam     `view:"-" desc:"optimizer over all network parameters"`
	Sched    *optim.StepLR   `view:"-" desc:"learning rate schedule"`
	Sink     Sink            `view:"-" desc:"receives checkpoints -- may be nil"`
	TrainEnv episode.Env     `desc:"training episodes, from the training pool"`
	TestEnv  episode.Env     `desc:"evaluation episodes, from the held-out test pool"`
	Rand     *rand.Rand      `view:"-" desc:"random source for weights and episodes, seeded from Config.Seed"`
	Iter     int             `inactive:"+" desc:"number of iterations done = index of the next iteration"`
	Loss     float64         `inactive:"+" desc:"loss of the last iteration"`
	Losses   []float64       `view:"-" desc:"loss of every evaluation iteration so far"`
	LossAvg  LossAvg         `view:"-" desc:"loss averages reported at checkpoints"`
	Eval     EvalStats       `inactive:"+" desc:"diagnostics of the last evaluation iteration"`
	Dy       []float32       `view:"-" desc:"gradient of the loss wrt the final output"`
	TstLog   *etable.Table   `view:"no-inline" desc:"one row per evaluation iteration"`
	SaveLog  *etable.Table   `view:"no-inline" desc:"one row per checkpoint"`
	TstFile  *os.File        `view:"-" desc:"if set, TstLog rows are also written here"`
	SaveFile *os.File        `view:"-" desc:"if set, SaveLog rows are also written here"`
	TstHdrs  bool            `view:"-" desc:"headers written to TstFile"`
	SaveHdrs bool            `view:"-" desc:"headers written to SaveFile"`
	EvalTime timer.Time      `view:"-" desc:"time since the last evaluation iteration"`
	Verbose  bool            `desc:"print evaluation and checkpoint reports"`
	StopNow  bool            `view:"-" desc:"set to stop Run before the next iteration"`
}

// NewSession validates the config, and builds and initializes everything
// needed to train on idx.  sink may be nil, in which case checkpoints are
// only logged.
func NewSession(cfg *Config, idx episode.Index, sink Sink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ss := &Session{Config: *cfg, Sink: sink, Verbose: true}
	cf := &ss.Config
	ss.Rand = rand.New(rand.NewSource(cf.Seed))

	bk, err := plast.NewBackend(cf.Backend, cf.NThreads)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	np := cf.NetParams()
	ss.Net, err = plast.NewNetwork("Plastic", &np, bk)
	if err != nil {
		bk.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	ss.Net.InitWts(ss.Rand)
	ss.Unroll = plast.NewUnroll(ss.Net)

	prs := ss.Net.AllParams()
	vars := make([]optim.Var, len(prs))
	for i, pr := range prs {
		vars[i] = pr
	}
	ss.Opt = optim.NewAdam(vars, cf.Lrate)
	ss.Sched = optim.NewStepLR(ss.Opt, cf.Lrate, cf.Gamma, cf.StepLR)

	ep := cf.EpisodeParams()
	ss.TrainEnv.Nm = "TrainEnv"
	ss.TrainEnv.Dsc = "training episodes"
	ss.TrainEnv.Config(idx, episode.TrainPool, &ep, ss.Rand)
	ss.TestEnv.Nm = "TestEnv"
	ss.TestEnv.Dsc = "held-out evaluation episodes"
	ss.TestEnv.Config(idx, episode.TestPool, &ep, ss.Rand)
	for _, ev := range []*episode.Env{&ss.TrainEnv, &ss.TestEnv} {
		if err := ev.Validate(); err != nil {
			ss.Net.Backend.Close()
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	ss.Dy = make([]float32, cf.NClasses)
	ss.Init()
	return ss, nil
}

// Init resets the run state (iteration count, stats and logs) but not the
// network weights or the optimizer.
func (ss *Session) Init() {
	ss.TrainEnv.Init(0)
	ss.TestEnv.Init(0)
	ss.Iter = 0
	ss.Loss = 0
	ss.Losses = nil
	ss.LossAvg.Init()
	ss.TstLog = &etable.Table{}
	ss.ConfigTstLog(ss.TstLog)
	ss.SaveLog = &etable.Table{}
	ss.ConfigSaveLog(ss.SaveLog)
	ss.EvalTime.Reset()
	ss.EvalTime.Start()
}

// Close releases the compute backend
func (ss *Session) Close() {
	ss.Net.Backend.Close()
}

// Run iterates until Config.NIter iterations are done, StopNow is set, or
// an error occurs.
func (ss *Session) Run() error {
	ss.StopNow = false
	for ss.Iter < ss.Config.NIter {
		if ss.StopNow {
			break
		}
		if err := ss.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// Episode unrolls the network over one new episode of ev, starting from a
// zero trace, and returns the loss of the final output against the target.
// If dy is non-nil the gradient of the loss wrt the final output is written
// into it.
func (ss *Session) Episode(ev *episode.Env, dy []float32) (float64, error) {
	if err := ev.NewEpisode(); err != nil {
		return 0, err
	}
	hebb := ss.Net.InitialZeroHebb()
	ss.Unroll.Reset()
	var out *etensor.Float32
	var err error
	for ev.Step() {
		out, hebb, err = ss.Unroll.Step(&ev.Image, &ev.Label, hebb)
		if err != nil {
			return 0, err
		}
	}
	return plast.BCELoss(out.Values, ev.Target.Values, dy), nil
}

// Iterate runs one iteration: an evaluation iteration on the test pool if
// Config.IsTest, else a training iteration with one optimizer step.
// Checkpoints are taken when Config.IsSave.
func (ss *Session) Iterate() error {
	cf := &ss.Config
	n := ss.Iter
	test := cf.IsTest(n)
	ss.Net.ZeroGrad()
	var err error
	if test {
		ss.Loss, err = ss.Episode(&ss.TestEnv, nil)
	} else {
		ss.Loss, err = ss.Episode(&ss.TrainEnv, ss.Dy)
	}
	if err != nil {
		return fmt.Errorf("train: iteration %d: %w", n, err)
	}
	if math.IsNaN(ss.Loss) || math.IsInf(ss.Loss, 0) {
		mpi.Printf("Warning: non-finite loss %g at iteration %d\n", ss.Loss, n)
	}
	if !test {
		if err := ss.Unroll.Backward(ss.Dy); err != nil {
			return fmt.Errorf("train: iteration %d: %w", n, err)
		}
		ss.Sched.Step()
		if err := ss.Opt.Step(); err != nil {
			return fmt.Errorf("train: iteration %d: %w", n, err)
		}
	}
	ss.LossAvg.Add(ss.Loss)
	if test {
		ss.EvalReport(n)
	}
	if cf.IsSave(n) {
		if err := ss.Checkpoint(n); err != nil {
			return err
		}
	}
	ss.Iter++
	return nil
}

// EvalReport records the stats of evaluation iteration n
func (ss *Session) EvalReport(n int) {
	y := ss.Unroll.Out()
	t := ss.TestEnv.Target.Values
	ss.Eval.Compute(y, t)
	ss.EvalTime.Stop()
	secs := ss.EvalTime.TotalSecs()
	ss.EvalTime.Reset()
	ss.EvalTime.Start()
	ss.Losses = append(ss.Losses, ss.Loss)
	ss.LogTst(ss.TstLog, n, secs)
	if !ss.Verbose {
		return
	}
	nv := len(y)
	if nv > NReportVals {
		nv = NReportVals
	}
	mpi.Printf("%d ====\n", n)
	mpi.Printf("y:  %v\n", y[:nv])
	mpi.Printf("target:  %v\n", t[:nv])
	mpi.Printf("Mean / median / max abs diff: %g %g %g\n", ss.Eval.MeanAbs, ss.Eval.MedianAbs, ss.Eval.MaxAbs)
	mpi.Printf("Correlation (full / sign): %g %g\n", ss.Eval.Corr, ss.Eval.SignCorr)
	mpi.Printf("Time spent on last %d iters: %g\n", ss.Config.TestEvery, secs)
	mpi.Printf("Loss on single withheld-data episode: %g\n", ss.Loss)
	mpi.Printf("Eta: %v\n", ss.Net.Eta.Val.Values)
}

// Checkpoint reports the loss averages and hands a Snapshot of the state
// after iteration n to the Sink
func (ss *Session) Checkpoint(n int) error {
	la := &ss.LossAvg
	avg := la.Avg()
	avg100 := la.AvgRecent()
	prev := la.Prev
	ss.LogSave(ss.SaveLog, n, avg, avg100, prev)
	if ss.Verbose {
		mpi.Printf("Saving files...\n")
		mpi.Printf("Average loss over the last %d episodes: %g\n", la.N, avg)
		mpi.Printf("Average loss over the last %d episodes: %g\n", NRecentLosses, avg100)
		mpi.Printf("Average loss over the previous interval: %g\n", prev)
	}
	la.Checkpoint()
	if ss.Sink == nil {
		return nil
	}
	snap := ss.Snapshot(n)
	snap.AvgLoss = avg
	snap.AvgLoss100 = avg100
	snap.PrevAvgLoss = prev
	if err := ss.Sink.Save(snap); err != nil {
		return fmt.Errorf("train: checkpoint at iteration %d: %w", n, err)
	}
	return nil
}
