// Package profiling adds pprof flags to a cobra command tree.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/grovetools/modelcore/errors"
	"github.com/spf13/cobra"
)

// CobraProfiler owns the profiling flags and the files they write.
type CobraProfiler struct {
	cpuProfileFile *os.File
	cpuProfilePath string
	memProfilePath string
	timing         bool
	started        time.Time
}

// NewCobraProfiler creates a profiler for a cobra command tree.
func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags adds the profiling flags to cmd and installs the pre and post run hooks.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&p.cpuProfilePath, "cpu-profile", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&p.memProfilePath, "mem-profile", "", "Write memory profile to file")
	cmd.PersistentFlags().BoolVar(&p.timing, "timing", false, "Print the command duration on exit")
	cmd.PersistentPreRunE = p.PreRun
	cmd.PersistentPostRun = p.PostRun
}

// PreRun starts CPU profiling when requested.
func (p *CobraProfiler) PreRun(cmd *cobra.Command, args []string) error {
	p.started = time.Now()
	if p.cpuProfilePath == "" {
		return nil
	}
	f, err := os.Create(p.cpuProfilePath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "could not create CPU profile")
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "could not start CPU profile")
	}
	p.cpuProfileFile = f
	return nil
}

// PostRun writes the requested profiles and the timing line.
func (p *CobraProfiler) PostRun(cmd *cobra.Command, args []string) {
	out := cmd.ErrOrStderr()
	if p.cpuProfileFile != nil {
		pprof.StopCPUProfile()
		p.cpuProfileFile.Close()
		p.cpuProfileFile = nil
		fmt.Fprintf(out, "CPU profile written to %s\n", p.cpuProfilePath)
	}

	if p.memProfilePath != "" {
		if err := writeHeapProfile(p.memProfilePath); err != nil {
			fmt.Fprintf(out, "could not write memory profile: %v\n", err)
		} else {
			fmt.Fprintf(out, "Memory profile written to %s\n", p.memProfilePath)
		}
	}

	if p.timing {
		fmt.Fprintf(out, "%s took %s\n", cmd.CommandPath(), time.Since(p.started).Round(time.Millisecond))
	}
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
