// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/emer/plastic/plast"
	"github.com/goki/gi/gi"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Snapshot is the state of a run at a checkpoint.  The parameter tensors
// and loss history are copies, but Net is the live network, valid only
// during Sink.Save.
type Snapshot struct {
	Name        string          `desc:"file name stem of the checkpoint"`
	Iter        int             `desc:"iteration after which the snapshot was taken (0-based)"`
	Config      Config          `desc:"configuration of the run"`
	Net         *plast.Network  `view:"-" desc:"the network -- valid only during Sink.Save"`
	W           etensor.Float32 `desc:"fixed weights"`
	Alpha       etensor.Float32 `desc:"plasticity coefficients"`
	Eta         etensor.Float32 `desc:"trace update rate"`
	Losses      []float64       `desc:"loss of every evaluation iteration so far"`
	AvgLoss     float64         `desc:"average loss since the previous checkpoint"`
	AvgLoss100  float64         `desc:"average loss over the last 100 iterations"`
	PrevAvgLoss float64         `desc:"average loss of the previous checkpoint interval"`
}

// LossIter returns the iteration (0-based) of the i-th evaluation loss
func (sn *Snapshot) LossIter(i int) int {
	return (i+1)*sn.Config.TestEvery - 1
}

// Sink receives checkpoints.  Save is called synchronously between
// iterations, and a returned error stops the run.
type Sink interface {
	Save(snap *Snapshot) error
}

func copyParam(to *etensor.Float32, pr *plast.Param) {
	to.SetShape(pr.Val.Shapes(), nil, nil)
	copy(to.Values, pr.Val.Values)
}

// Snapshot returns a snapshot of the current state, taken after iteration n
func (ss *Session) Snapshot(n int) *Snapshot {
	snap := &Snapshot{Name: ss.Config.CheckpointName(n), Iter: n, Config: ss.Config, Net: ss.Net}
	copyParam(&snap.W, &ss.Net.W)
	copyParam(&snap.Alpha, &ss.Net.Alpha)
	copyParam(&snap.Eta, &ss.Net.Eta)
	snap.Losses = append([]float64(nil), ss.Losses...)
	snap.AvgLoss = math.NaN()
	snap.AvgLoss100 = math.NaN()
	snap.PrevAvgLoss = math.NaN()
	return snap
}

//////////////////////////////////////////////
//  MemSink

// MemSink keeps every snapshot in memory, with Net cleared
type MemSink struct {
	Snaps []*Snapshot
}

func (ms *MemSink) Save(snap *Snapshot) error {
	sn := *snap
	sn.Net = nil
	ms.Snaps = append(ms.Snaps, &sn)
	return nil
}

//////////////////////////////////////////////
//  FileSink

// FileSink writes each checkpoint to files in Dir, named from the snapshot
// name:
//   <name>.wts.gz      all network weights, readable by Network.OpenWtsJSON
//   loss_<name>.tsv    evaluation loss history
//   config_<name>.toml configuration
//   loss_<name>.png    plot of the evaluation loss history, if Plot
// Files with the same name are overwritten.
type FileSink struct {
	Dir       string `desc:"directory files are written to -- created if needed"`
	MirrorDir string `desc:"if set, all files are also copied here"`
	Plot      bool   `desc:"write the loss plot"`
}

// NewFileSink returns a sink writing to dir, with plots on
func NewFileSink(dir, mirror string) *FileSink {
	return &FileSink{Dir: dir, MirrorDir: mirror, Plot: true}
}

// Files returns the paths (in Dir) of the files written for snapshot name nm
func (fs *FileSink) Files(nm string) []string {
	fns := []string{nm + ".wts.gz", "loss_" + nm + ".tsv", "config_" + nm + ".toml"}
	if fs.Plot {
		fns = append(fns, "loss_"+nm+".png")
	}
	for i, fn := range fns {
		fns[i] = filepath.Join(fs.Dir, fn)
	}
	return fns
}

func (fs *FileSink) Save(snap *Snapshot) error {
	if err := os.MkdirAll(fs.Dir, 0755); err != nil {
		return errors.Wrapf(err, "train: creating checkpoint dir %s", fs.Dir)
	}
	fns := fs.Files(snap.Name)
	if snap.Net != nil {
		if err := snap.Net.SaveWtsJSON(gi.FileName(fns[0])); err != nil {
			return err
		}
	}
	if err := SaveLosses(snap, fns[1]); err != nil {
		return err
	}
	if err := snap.Config.SaveTOML(fns[2]); err != nil {
		return err
	}
	if fs.Plot {
		if err := PlotLosses(snap, fns[3]); err != nil {
			return err
		}
	}
	if fs.MirrorDir == "" {
		return nil
	}
	if err := os.MkdirAll(fs.MirrorDir, 0755); err != nil {
		return errors.Wrapf(err, "train: creating mirror dir %s", fs.MirrorDir)
	}
	for _, fn := range fns {
		if snap.Net == nil && fn == fns[0] {
			continue
		}
		if err := copyFile(fn, filepath.Join(fs.MirrorDir, filepath.Base(fn))); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "train: mirroring %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "train: mirroring to %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "train: mirroring to %s", dst)
	}
	return errors.Wrapf(out.Close(), "train: mirroring to %s", dst)
}

// LossTable returns the evaluation loss history of the snapshot as a table
// with Iter and Loss columns
func LossTable(snap *Snapshot) *etable.Table {
	dt := &etable.Table{}
	dt.SetMetaData("name", "Losses")
	dt.SetMetaData("desc", "loss of each evaluation iteration")
	sch := etable.Schema{
		{"Iter", etensor.INT64, nil, nil},
		{"Loss", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, len(snap.Losses))
	for i, l := range snap.Losses {
		dt.SetCellFloat("Iter", i, float64(snap.LossIter(i)))
		dt.SetCellFloat("Loss", i, l)
	}
	return dt
}

// SaveLosses writes the evaluation loss history to a tab-separated file
func SaveLosses(snap *Snapshot, filename string) error {
	dt := LossTable(snap)
	if err := dt.SaveCSV(gi.FileName(filename), etable.Tab, etable.Headers); err != nil {
		return errors.Wrapf(err, "train: writing losses %s", filename)
	}
	return nil
}

// PlotLosses saves a PNG plot of the evaluation loss history.
// Non-finite losses are skipped.
func PlotLosses(snap *Snapshot, filename string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Held-out loss: %s", snap.Config.RunID)
	p.X.Label.Text = "Iter"
	p.Y.Label.Text = "Loss"
	xys := make(plotter.XYs, 0, len(snap.Losses))
	for i, l := range snap.Losses {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(snap.LossIter(i)), Y: l})
	}
	if len(xys) > 0 {
		ln, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "train: plotting losses")
		}
		p.Add(ln)
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, filename); err != nil {
		return errors.Wrapf(err, "train: saving loss plot %s", filename)
	}
	return nil
}
