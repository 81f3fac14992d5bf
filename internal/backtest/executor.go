package backtest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/panics"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/pkg/exception"
)

// Executor replays one chunk into the result file out.
type Executor interface {
	Execute(ctx context.Context, chunk Chunk, out string) error
}

// InProcessExecutor runs chunks on goroutines of the current process. Every
// chunk gets its own Runner, so chunks share nothing mutable.
type InProcessExecutor struct {
	Env Env
}

func (e InProcessExecutor) Execute(ctx context.Context, chunk Chunk, out string) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		var r *Runner
		if r, err = NewRunner(e.Env); err != nil {
			return
		}
		var res ChunkResult
		res, err = r.RunChunk(ctx, chunk, out)
		if err == nil && len(res.Failed) > 0 {
			logs.Warnf("chunk %d finished with %d failed markets: %v", chunk.Index, len(res.Failed), res.Failed)
		}
	})
	if rec := catcher.Recovered(); rec != nil {
		return errors.Wrapf(exception.ErrChunkFailed, "chunk %d, err: %+v", chunk.Index, rec.AsError())
	}
	return err
}

// WorkerCommand is the subcommand that makes the binary run a single chunk.
const WorkerCommand = "worker"

// ProcessExecutor runs every chunk in a child process, re-executing Binary
// with the worker subcommand. Market ids are passed on stdin, one per line.
type ProcessExecutor struct {
	Binary     string
	ConfigPath string
	// Env is appended to the parent environment of the child.
	Env []string
}

// NewProcessExecutor re-executes the running binary.
func NewProcessExecutor(configPath string) (*ProcessExecutor, error) {
	bin, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "resolve executable")
	}
	return &ProcessExecutor{Binary: bin, ConfigPath: configPath}, nil
}

func (e *ProcessExecutor) Execute(ctx context.Context, chunk Chunk, out string) error {
	cmd := exec.CommandContext(ctx, e.Binary, WorkerArgs(e.ConfigPath, chunk.Index, out)...)
	cmd.Stdin = strings.NewReader(strings.Join(chunk.Markets, "\n"))
	cmd.Stdout = os.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	cmd.Env = append(os.Environ(), e.Env...)

	if err := cmd.Run(); err != nil {
		return errors.Wrapf(exception.ErrChunkFailed, "chunk %d worker %s, err: %+v, stderr: %s",
			chunk.Index, e.Binary, err, lastLine(stderr.String()))
	}
	return nil
}

// WorkerArgs builds the child command line for one chunk.
func WorkerArgs(configPath string, chunk int, out string) []string {
	return []string{WorkerCommand, "-config", configPath, "-chunk", strconv.Itoa(chunk), "-out", out}
}

// ReadMarkets reads the newline separated market ids a worker gets on stdin.
func ReadMarkets(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, sc.Err()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
