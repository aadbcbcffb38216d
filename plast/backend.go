// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/emer/emergent/timer"
	"github.com/goki/ki/ints"
	"github.com/klauspost/cpuid/v2"
)

// BackwardTimer names the timer of the whole backward pass
const BackwardTimer = "Backward"

// parJob is one slice of a ParFor loop sent to a worker
type parJob struct {
	n   int
	nth int
	th  int
	fun func(i int)
}

// Backend runs the data-parallel loops of the network, either in the calling
// goroutine (CPU) or over a pool of worker goroutines (Threads).
// Only one ParFor can be in flight at a time.
type Backend struct {
	Kind     Backends               `inactive:"+" desc:"which kind of backend this is"`
	NThreads int                    `inactive:"+" desc:"number of worker goroutines -- 1 for CPU"`
	ThrChans []chan parJob          `view:"-" desc:"job channels, per thread"`
	ThrTimes []timer.Time           `view:"-" desc:"timers for each thread, so you can see how evenly the workload is being distributed"`
	FunTimes map[string]*timer.Time `view:"-" desc:"timers for each major function (step of processing)"`
	WaitGp   sync.WaitGroup         `view:"-" desc:"wait group for synchronizing threaded calls"`
}

// DefaultThreads returns the number of physical cores, or the number of
// logical CPUs if that is not known.
func DefaultThreads() int {
	n := cpuid.CPU.PhysicalCores
	if n < 1 {
		n = runtime.NumCPU()
	}
	return n
}

// CPUInfo returns a one-line description of the processor
func CPUInfo() string {
	return fmt.Sprintf("%s: %d physical / %d logical cores", cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
}

// NewBackend returns a started backend of given kind.  nthr <= 0 uses
// DefaultThreads for the Threads kind, and is ignored for CPU.
func NewBackend(kind Backends, nthr int) (*Backend, error) {
	bk := &Backend{Kind: kind}
	switch kind {
	case CPU:
		bk.NThreads = 1
	case Threads:
		if nthr <= 0 {
			nthr = DefaultThreads()
		}
		bk.NThreads = nthr
	default:
		return nil, fmt.Errorf("%w: backend %v (must be CPU or Threads)", ErrConfig, kind)
	}
	bk.FunTimes = make(map[string]*timer.Time)
	bk.ThrTimes = make([]timer.Time, bk.NThreads)
	if bk.NThreads > 1 {
		bk.ThrChans = make([]chan parJob, bk.NThreads)
		for th := range bk.ThrChans {
			bk.ThrChans[th] = make(chan parJob)
		}
		bk.StartThreads()
	}
	return bk, nil
}

// StartThreads starts up the computation threads, which monitor the channels for work
func (bk *Backend) StartThreads() {
	for th := 0; th < len(bk.ThrChans); th++ {
		go bk.ThrWorker(th)
	}
}

// Close stops the computation threads.  The backend cannot be used after this.
func (bk *Backend) Close() {
	for th := 0; th < len(bk.ThrChans); th++ {
		close(bk.ThrChans[th])
	}
	bk.ThrChans = nil
	bk.NThreads = 1
}

// ThrWorker is the worker function run by the worker threads
func (bk *Backend) ThrWorker(tt int) {
	for job := range bk.ThrChans[tt] {
		bk.ThrTimes[tt].Start()
		for i := job.th; i < job.n; i += job.nth {
			job.fun(i)
		}
		bk.ThrTimes[tt].Stop()
		bk.WaitGp.Done()
	}
}

// ParFor calls fun(i) for i in [0, n), using the worker threads if NThreads > 1
// and otherwise iterating in the current goroutine.  Calls for different i
// must not write to the same memory.
func (bk *Backend) ParFor(n int, fun func(i int), funame string) {
	bk.FunTimerStart(funame)
	if bk.NThreads <= 1 || n < 2 {
		for i := 0; i < n; i++ {
			fun(i)
		}
	} else {
		nth := ints.MinInt(bk.NThreads, n)
		for th := 0; th < nth; th++ {
			bk.WaitGp.Add(1)
			bk.ThrChans[th] <- parJob{n: n, nth: nth, th: th, fun: fun}
		}
		bk.WaitGp.Wait()
	}
	bk.FunTimerStop(funame)
}

// TimerReport writes the calls and time of each parallel loop, and the time
// in each thread.  Backward encloses the ConvDWt and ConvDIn loops so it is
// listed on its own, outside the loop total.
func (bk *Backend) TimerReport(w io.Writer) {
	fmt.Fprintf(w, "TimerReport: %v, NThreads: %v\n", bk.Kind, bk.NThreads)
	fmt.Fprintf(w, "\tLoop\tCalls\tTotal Secs\tms/Call\tPct\n")
	fnms := make([]string, 0, len(bk.FunTimes))
	for k := range bk.FunTimes {
		if k != BackwardTimer {
			fnms = append(fnms, k)
		}
	}
	sort.Strings(fnms)
	tot := 0.0
	for _, fn := range fnms {
		tot += bk.FunTimes[fn].TotalSecs()
	}
	for _, fn := range fnms {
		ft := bk.FunTimes[fn]
		secs := ft.TotalSecs()
		pct := 0.0
		if tot > 0 {
			pct = 100 * secs / tot
		}
		fmt.Fprintf(w, "\t%v\t%d\t%6.4g\t%6.4g\t%6.4g\n", fn, ft.N, secs, ft.AvgMSecs(), pct)
	}
	fmt.Fprintf(w, "\tLoops\t\t%6.4g\n", tot)
	if bt, ok := bk.FunTimes[BackwardTimer]; ok {
		fmt.Fprintf(w, "\t%v\t%d\t%6.4g\t%6.4g\n", BackwardTimer, bt.N, bt.TotalSecs(), bt.AvgMSecs())
	}

	if bk.NThreads <= 1 {
		return
	}
	fmt.Fprintf(w, "\n\tThr\tTotal Secs\tPct\n")
	tot = 0.0
	for th := 0; th < bk.NThreads; th++ {
		tot += bk.ThrTimes[th].TotalSecs()
	}
	for th := 0; th < bk.NThreads; th++ {
		secs := bk.ThrTimes[th].TotalSecs()
		pct := 0.0
		if tot > 0 {
			pct = 100 * secs / tot
		}
		fmt.Fprintf(w, "\t%v\t%6.4g\t%6.4g\n", th, secs, pct)
	}
}

// TimerReset resets all the function and thread timers
func (bk *Backend) TimerReset() {
	for _, ft := range bk.FunTimes {
		ft.Reset()
	}
	for th := range bk.ThrTimes {
		bk.ThrTimes[th].Reset()
	}
}

// FunTimerStart starts function timer for given function name -- ensures creation of timer
func (bk *Backend) FunTimerStart(fun string) {
	ft, ok := bk.FunTimes[fun]
	if !ok {
		ft = &timer.Time{}
		bk.FunTimes[fun] = ft
	}
	ft.Start()
}

// FunTimerStop stops function timer -- timer must already exist
func (bk *Backend) FunTimerStop(fun string) {
	ft := bk.FunTimes[fun]
	ft.Stop()
}
