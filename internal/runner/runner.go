// Package runner starts the backtest command as a child process.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrTimeout = errors.New("backtest command timed out")

// Error is returned when the command exits unsuccessfully. It carries the
// output collected up to that point.
type Error struct {
	Err    error
	Stdout string
	Stderr string
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLine(s)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Result is the captured output of a successful run.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner invokes Command followed by BaseArgs and the per-run arguments.
// Env is added to the inherited environment.
type Runner struct {
	Command  string
	BaseArgs []string
	Env      []string
	Timeout  time.Duration
	Dir      string
}

// New runs the current executable in backtest mode. baseArgs carry the
// settings the child shares with this process and precede every run's
// arguments.
func New(timeout time.Duration, baseArgs, env []string) (*Runner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	return &Runner{
		Command:  exe,
		BaseArgs: append([]string{"-mode", "backtest"}, baseArgs...),
		Env:      env,
		Timeout:  timeout,
	}, nil
}

// BacktestArgs builds the arguments of one backtest run. extra is appended
// as is.
func BacktestArgs(strategy, symbol, timeframe, historyFile string, extra []string) []string {
	args := []string{
		"-strategy", strategy,
		"-symbol", symbol,
		"-timeframe", timeframe,
		"-history", historyFile,
	}
	return append(args, extra...)
}

// Run executes the command and waits for it, killing it when ctx is done or
// the timeout elapses.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	all := append(append([]string{}, r.BaseArgs...), args...)
	cmd := exec.CommandContext(ctx, r.Command, all...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Bounds the wait for output pipes a killed child's descendants keep open.
	cmd.WaitDelay = time.Second

	log.Printf("Runner.Run | %s %s", r.Command, strings.Join(all, " "))
	started := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(started)}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, r.Timeout)
		}
		return res, &Error{Err: err, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	log.Printf("Runner.Run | finished in %s", res.Duration.Round(time.Millisecond))
	return res, nil
}
