package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"aqualid/internal/build"
	"aqualid/internal/events"
	"aqualid/internal/tasks"
	"aqualid/internal/tempfile"
	"aqualid/internal/values"
)

func (s *settings) buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bring every node of the build file up to date",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runBuild(cmd)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&s.jobs, "jobs", "j", defaultJobs(), "number of parallel jobs")
	f.BoolVarP(&s.keepGoing, "keep-going", "k", false, "keep building independent nodes after a failure")
	f.StringVar(&s.signature, "signature", values.SignatureChecksum.String(), "file signature: checksum or timestamp")
	f.StringVar(&s.metrics, "metrics", "", "write Prometheus metrics in text format to this file after the build")
	f.StringVar(&s.trace, "trace", "", "write the build events as JSON lines to this file")
	f.BoolVar(&s.backtrace, "backtrace", false, "keep goroutine stacks of panicking actions")
	return cmd
}

func (s *settings) runBuild(cmd *cobra.Command) (err error) {
	if s.jobs < 1 {
		return invalidInvocationf("--jobs must be at least 1, got %d", s.jobs)
	}
	kind, err := values.ParseSignatureKind(s.signature)
	if err != nil {
		return invalidInvocationf("--signature: %v", err)
	}

	p, err := s.loadProject()
	if err != nil {
		return err
	}
	nodes, err := p.file.BuildNodes(p.opts, p.workDir, s.stdout)
	if err != nil {
		return err
	}
	g, err := build.NewGraph(nodes)
	if err != nil {
		return err
	}

	vf, err := s.openValues(p.workDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := vf.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	reg := prometheus.NewRegistry()
	tm := tasks.New(
		tasks.WithWorkers(s.jobs),
		tasks.WithLogger(s.logger),
		tasks.WithMetrics(tasks.NewMetrics(reg)),
		tasks.WithBacktrace(s.backtrace),
	)
	defer tm.Finish()

	em := events.New(events.WithLogger(s.logger))
	defer em.Close()
	if err := events.RegisterBuiltins(em, s.logger); err != nil {
		return err
	}
	var rec *events.Recorder
	if s.trace != "" {
		rec = events.NewRecorder()
		if _, err := rec.Attach(em); err != nil {
			return err
		}
	}

	bm := build.NewManager(vf, tm, em,
		build.WithLogger(s.logger),
		build.WithKeepGoing(s.keepGoing),
		build.WithSignatureKind(kind),
		build.WithBaseDir(p.workDir),
		build.WithSignatureWorkers(s.jobs),
	)
	summary, berr := bm.Build(cmd.Context(), g)

	var werrs []error
	if rec != nil {
		werrs = append(werrs, tempfile.WriteAtomic(s.trace, 0o644, rec.WriteJSON))
	}
	if s.metrics != "" {
		werrs = append(werrs, prometheus.WriteToTextfile(s.metrics, reg))
	}
	if werr := errors.Join(werrs...); werr != nil {
		s.logger.Error("writing build reports", slog.String("error", werr.Error()))
		if berr == nil {
			berr = werr
		}
	}

	fmt.Fprintf(s.stdout, "%d built, %d up to date, %d failed, %d skipped in %s\n",
		summary.Built, summary.Cached, summary.Failed, summary.Skipped, summary.Duration.Round(time.Millisecond))
	return berr
}

