// Package cli implements the aql command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"aqualid/internal/config"
	"aqualid/internal/filelock"
	"aqualid/internal/logging"
	"aqualid/internal/options"
	"aqualid/internal/values"
)

const (
	defaultBuildFile = "aql.yaml"
	defaultCacheFile = ".aql.values"
)

type settings struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	file        string
	workDir     string
	cache       string
	storage     string
	logLevel    string
	logFormat   string
	sets        []string
	lockTimeout time.Duration

	jobs      int
	keepGoing bool
	signature string
	metrics   string
	trace     string
	backtrace bool

	showValues bool

	// started is set once flags and arguments were accepted.
	started bool
}

// Run executes the command line args and returns the exit code. Errors are
// reported on stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	s := &settings{stdout: stdout, stderr: stderr}
	root := s.rootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if !s.started {
		err = &InvocationError{ExitCode: ExitInvalidInvocation, Err: err}
	}
	fmt.Fprintln(stderr, "aql:", err)
	return ExitCode(err)
}

func (s *settings) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "aql",
		Short:         "Aqualid builds files from a YAML build description",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(s.stderr, s.logLevel, logging.Format(s.logFormat))
			if err != nil {
				return invalidInvocationf("%v", err)
			}
			s.logger = logger
			s.started = true
			return nil
		},
	}
	root.SetOut(s.stdout)
	root.SetErr(s.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&s.file, "file", "f", defaultBuildFile, "build file")
	pf.StringVarP(&s.workDir, "workdir", "C", "", "directory relative paths are resolved against (default: the build file's directory)")
	pf.StringVar(&s.cache, "cache", defaultCacheFile, "values file, relative to the work directory")
	pf.StringVar(&s.storage, "storage", "record", "values file backend: record or badger")
	pf.StringVar(&s.logLevel, "log-level", "info", "critical, error, warning, info or debug")
	pf.StringVar(&s.logFormat, "log-format", string(logging.FormatText), "text or json")
	pf.StringArrayVar(&s.sets, "set", nil, "option setting name=value, name+=value or name-=value (repeatable)")
	pf.DurationVar(&s.lockTimeout, "lock-timeout", filelock.DefaultTimeout, "how long to wait for the values file lock")

	root.AddCommand(s.buildCommand(), s.optionsCommand(), s.cacheCommand())
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("%s: unexpected arguments %q", cmd.CommandPath(), args)
	}
	return nil
}

type project struct {
	file    *config.File
	opts    *options.Options
	workDir string
}

// loadProject reads the build file and builds its option scope with the
// --set overrides applied.
func (s *settings) loadProject() (*project, error) {
	path, err := filepath.Abs(s.file)
	if err != nil {
		return nil, invalidInvocationf("--file: %v", err)
	}
	f, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InvocationError{ExitCode: ExitConfigError, Message: "build file not found", Err: err}
		}
		return nil, err
	}

	o, err := f.Options()
	if err != nil {
		return nil, err
	}
	if err := config.ApplyOverrides(o, s.sets); err != nil {
		return nil, err
	}

	wd, err := s.resolveWorkDir(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return &project{file: f, opts: o, workDir: wd}, nil
}

func (s *settings) resolveWorkDir(def string) (string, error) {
	if s.workDir == "" {
		return def, nil
	}
	wd, err := filepath.Abs(s.workDir)
	if err != nil {
		return "", invalidInvocationf("--workdir: %v", err)
	}
	return wd, nil
}

// openValues opens the values file under workDir with the selected backend.
func (s *settings) openValues(workDir string) (*values.ValuesFile, error) {
	path := s.cache
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	opts := []values.FileOption{
		values.WithLogger(s.logger),
		values.WithLockTimeout(s.lockTimeout),
	}
	var bs *values.BadgerStorage
	switch s.storage {
	case "record", "":
	case "badger":
		var err error
		bs, err = values.OpenBadgerStorage(values.BadgerConfig{Path: path + ".db", Logger: s.logger})
		if err != nil {
			return nil, err
		}
		opts = append(opts, values.WithStorage(bs))
	default:
		return nil, invalidInvocationf("--storage must be record or badger, got %q", s.storage)
	}

	vf, err := values.Open(path, opts...)
	if err != nil {
		if bs != nil {
			_ = bs.Close()
		}
		return nil, err
	}
	s.logger.Debug("values file opened", slog.String("path", path), slog.Int("values", vf.Len()))
	return vf, nil
}

func defaultJobs() int { return runtime.NumCPU() }
