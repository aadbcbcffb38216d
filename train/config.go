// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/emer/emergent/params"
	"github.com/emer/plastic/episode"
	"github.com/emer/plastic/plast"
	"github.com/jinzhu/copier"
	pkgerrors "github.com/pkg/errors"
)

// ErrConfig is returned (wrapped) for an invalid training configuration
var ErrConfig = errors.New("train: invalid configuration")

// Config is the complete configuration of a training run.  It is built once,
// validated by NewSession, and never changed during the run.
type Config struct {
	NClasses     int              `def:"5" min:"1" desc:"number of classes per episode"`
	NShots       int              `def:"1" min:"1" desc:"number of presentations of each class during study"`
	PresTime     int              `def:"1" min:"1" desc:"number of steps each study image is shown"`
	PresTimeTest int              `def:"1" min:"1" desc:"number of steps the query image is shown"`
	IPD          int              `def:"0" min:"0" desc:"inter-presentation delay: blank steps after each study presentation"`
	ImgSize      int              `def:"31" desc:"side of the images fed to the network -- must reduce to 1x1 through the encoder (31 to 46)"`
	Activ        plast.ActFuns    `def:"Tanh" desc:"encoder activation function"`
	Rule         plast.Rules      `def:"Hebb" desc:"trace update rule"`
	Alpha        plast.AlphaModes `def:"Free" desc:"per-connection (Free) or shared (Yoked) plasticity coefficients"`
	NFeat        int              `def:"64" min:"1" desc:"number of encoder feature maps = embedding width"`
	Flare        bool             `def:"false" desc:"use encoder widths NFeat/4, NFeat/4, NFeat/2, NFeat"`
	Lrate        float32          `def:"3e-5" desc:"initial Adam learning rate"`
	Gamma        float32          `def:"0.666" desc:"learning rate decay factor applied every StepLR iterations"`
	StepLR       int              `def:"1000000" min:"1" desc:"learning rate decay period, in training iterations"`
	NIter        int              `def:"5000000" min:"1" desc:"total number of iterations, training and evaluation"`
	TestEvery    int              `def:"500" min:"1" desc:"every TestEvery-th iteration is an evaluation iteration on the test pool"`
	SaveEvery    int              `def:"10000" min:"1" desc:"checkpoint every SaveEvery iterations"`
	Seed         int64            `def:"0" desc:"random seed for weights, dataset split, rotations and episodes"`

	RunID        string         `desc:"run identifier -- required, included in every checkpoint name"`
	Backend      plast.Backends `def:"CPU" desc:"compute backend"`
	NThreads     int            `def:"0" desc:"number of worker goroutines for the Threads backend -- 0 = number of physical cores"`
	ArchiveEvery int            `def:"500000" desc:"checkpoints at multiples of ArchiveEvery iterations get the iteration appended to their name, so they are kept"`
	MirrorDir    string         `desc:"if set, every checkpoint file is also copied to this directory"`
}

// Defaults sets the default configuration.  RunID is left empty.
func (cf *Config) Defaults() {
	cf.NClasses = 5
	cf.NShots = 1
	cf.PresTime = 1
	cf.PresTimeTest = 1
	cf.IPD = 0
	cf.ImgSize = 31
	cf.Activ = plast.Tanh
	cf.Rule = plast.Hebb
	cf.Alpha = plast.Free
	cf.NFeat = 64
	cf.Flare = false
	cf.Lrate = 3e-5
	cf.Gamma = 0.666
	cf.StepLR = 1000000
	cf.NIter = 5000000
	cf.TestEvery = 500
	cf.SaveEvery = 10000
	cf.Seed = 0
	cf.Backend = plast.CPU
	cf.NThreads = 0
	cf.ArchiveEvery = 500000
	cf.MirrorDir = ""
}

// EpisodeParams returns the episode parameters of this config.
// Fields are copied by name, except NClasses.
func (cf *Config) EpisodeParams() episode.Params {
	pr := episode.Params{}
	pr.Defaults()
	if err := copier.Copy(&pr, cf); err != nil {
		log.Println(err)
	}
	pr.NClass = cf.NClasses
	return pr
}

// NetParams returns the network parameters of this config, with default
// initialization distributions.  Fields are copied by name, except NClasses.
func (cf *Config) NetParams() plast.Params {
	pr := plast.Params{}
	pr.Defaults()
	if err := copier.Copy(&pr, cf); err != nil {
		log.Println(err)
	}
	pr.NClass = cf.NClasses
	return pr
}

// Validate returns an error wrapping ErrConfig for the first problem found,
// including problems in the derived episode and network parameters.
func (cf *Config) Validate() error {
	switch {
	case strings.TrimSpace(cf.RunID) == "":
		return fmt.Errorf("%w: RunID must be set", ErrConfig)
	case strings.ContainsAny(cf.RunID, `/\`):
		return fmt.Errorf("%w: RunID %q must not contain path separators", ErrConfig, cf.RunID)
	case cf.Lrate <= 0:
		return fmt.Errorf("%w: Lrate = %g", ErrConfig, cf.Lrate)
	case cf.Gamma <= 0:
		return fmt.Errorf("%w: Gamma = %g", ErrConfig, cf.Gamma)
	case cf.StepLR < 1:
		return fmt.Errorf("%w: StepLR = %d", ErrConfig, cf.StepLR)
	case cf.NIter < 1:
		return fmt.Errorf("%w: NIter = %d", ErrConfig, cf.NIter)
	case cf.TestEvery < 1:
		return fmt.Errorf("%w: TestEvery = %d", ErrConfig, cf.TestEvery)
	case cf.SaveEvery < 1:
		return fmt.Errorf("%w: SaveEvery = %d", ErrConfig, cf.SaveEvery)
	case cf.ArchiveEvery < 0:
		return fmt.Errorf("%w: ArchiveEvery = %d", ErrConfig, cf.ArchiveEvery)
	case cf.Backend < 0 || cf.Backend >= plast.BackendsN:
		return fmt.Errorf("%w: Backend %v (must be CPU or Threads)", ErrConfig, cf.Backend)
	case cf.NThreads < 0:
		return fmt.Errorf("%w: NThreads = %d", ErrConfig, cf.NThreads)
	}
	ep := cf.EpisodeParams()
	if err := ep.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	np := cf.NetParams()
	if err := np.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// IsTest returns true if iteration n (0-based) is an evaluation iteration
func (cf *Config) IsTest(n int) bool {
	return (n+1)%cf.TestEvery == 0
}

// IsSave returns true if a checkpoint is due after iteration n (0-based)
func (cf *Config) IsSave(n int) bool {
	return (n+1)%cf.SaveEvery == 0
}

// Suffix returns the name shared by all files of this run: the
// configuration fields in alphabetical order of their short names, then
// the random seed and the run identifier.  Cadences that do not affect
// learning (TestEvery, SaveEvery) and the execution options (Backend,
// NThreads, MirrorDir) are not included.
func (cf *Config) Suffix() string {
	flds := []struct {
		nm  string
		val interface{}
	}{
		{"activ", strings.ToLower(cf.Activ.String())},
		{"alpha", strings.ToLower(cf.Alpha.String())},
		{"flare", cf.Flare},
		{"gamma", cf.Gamma},
		{"imgsize", cf.ImgSize},
		{"ipd", cf.IPD},
		{"lr", cf.Lrate},
		{"nbclasses", cf.NClasses},
		{"nbf", cf.NFeat},
		{"nbiter", cf.NIter},
		{"nbshots", cf.NShots},
		{"prestime", cf.PresTime},
		{"prestimetest", cf.PresTimeTest},
		{"rule", strings.ToLower(cf.Rule.String())},
		{"steplr", cf.StepLR},
	}
	var b strings.Builder
	b.WriteString("W")
	for _, f := range flds {
		fmt.Fprintf(&b, "%s_%v_", f.nm, f.val)
	}
	fmt.Fprintf(&b, "rngseed_%d_run_%s", cf.Seed, cf.RunID)
	return b.String()
}

// CheckpointName returns the file name stem of the checkpoint taken after
// iteration n (0-based): the Suffix, with n+1 appended at multiples of ArchiveEvery
func (cf *Config) CheckpointName(n int) string {
	nm := cf.Suffix()
	if cf.ArchiveEvery > 0 && (n+1)%cf.ArchiveEvery == 0 {
		nm += fmt.Sprintf("_%d", n+1)
	}
	return nm
}

// OpenTOML reads config values from a TOML file, on top of current values
func (cf *Config) OpenTOML(filename string) error {
	if _, err := toml.DecodeFile(filename, cf); err != nil {
		return pkgerrors.Wrapf(err, "train: reading config %s", filename)
	}
	return nil
}

// SaveTOML writes the config to a TOML file
func (cf *Config) SaveTOML(filename string) error {
	fp, err := os.Create(filename)
	if err != nil {
		return pkgerrors.Wrapf(err, "train: creating config %s", filename)
	}
	if err := toml.NewEncoder(fp).Encode(cf); err != nil {
		fp.Close()
		return pkgerrors.Wrapf(err, "train: writing config %s", filename)
	}
	if err := fp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "train: closing config %s", filename)
	}
	return nil
}

// ApplyParams applies the "Config" sheet of the Base set, and then of the
// named set if it is not empty or Base.
// If setMsg is true, a message is printed for each parameter set.
func (cf *Config) ApplyParams(sets params.Sets, setNm string, setMsg bool) error {
	if err := cf.applyParamSet(sets, "Base", setMsg); err != nil {
		return err
	}
	if setNm != "" && setNm != "Base" {
		return cf.applyParamSet(sets, setNm, setMsg)
	}
	return nil
}

func (cf *Config) applyParamSet(sets params.Sets, setNm string, setMsg bool) error {
	pset, err := sets.SetByNameTry(setNm)
	if err != nil {
		return err
	}
	if sht, ok := pset.Sheets["Config"]; ok {
		if _, err := sht.Apply(cf, setMsg); err != nil {
			return fmt.Errorf("%w: param set %s: %w", ErrConfig, setNm, err)
		}
	}
	return nil
}
