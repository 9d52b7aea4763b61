package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ExecAction runs a shell command.
//
// The command sees only the variables in Env plus the host variables named
// in PassEnv. On cancellation the whole process group is killed.
type ExecAction struct {
	Command string
	Env     map[string]string
	PassEnv []string
	Dir     string

	// Output receives the command's stdout and stderr when set.
	Output io.Writer
}

var (
	_ Action = (*ExecAction)(nil)
	_ Signer = (*ExecAction)(nil)
)

// ExecError reports a command that exited with a non-zero code.
type ExecError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if s := lastLine(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// Signature covers everything that changes what the command does.
func (a *ExecAction) Signature() string {
	d := newDigest()
	d.field("exec")
	d.field(a.Command)
	d.field(a.Dir)
	d.env(a.Env)
	pass := append([]string(nil), a.PassEnv...)
	sort.Strings(pass)
	d.fields(pass)
	return d.sum()
}

func (a *ExecAction) environ() []string {
	env := make(map[string]string, len(a.Env)+len(a.PassEnv))
	for _, k := range a.PassEnv {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	for k, v := range a.Env {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func (a *ExecAction) Run(ctx context.Context) error {
	if strings.TrimSpace(a.Command) == "" {
		return nil
	}

	cmd := shellCommand(a.Command)
	cmd.Dir = a.Dir
	cmd.Env = a.environ()
	setProcessGroup(cmd)

	var stderr bytes.Buffer
	if a.Output != nil {
		cmd.Stdout = a.Output
		cmd.Stderr = io.MultiWriter(&stderr, a.Output)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return fmt.Errorf("command cancelled: %w", ctx.Err())
	case err = <-done:
	}

	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExecError{Command: a.Command, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return fmt.Errorf("run command: %w", err)
}
