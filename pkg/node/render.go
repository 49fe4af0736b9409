package node

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/chazu/burl/pkg/renderlock"
	"github.com/chazu/burl/pkg/stale"
)

// Renderer describes the external renderer subprocess. It is invoked
// as: Command [Args...] <descriptionFile> -o <binaryFile>.
type Renderer struct {
	Command string
	Args    []string
}

func (r Renderer) command(scadFile, stlFile string) *exec.Cmd {
	args := make([]string, 0, len(r.Args)+3)
	args = append(args, r.Args...)
	args = append(args, scadFile, "-o", stlFile)
	return exec.Command(r.Command, args...)
}

// RenderError reports an external renderer invocation that exited
// unsuccessfully.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Job is an in-flight renderer invocation: the Pending variant of
// binary generation. The caller decides when to Wait on it.
type Job struct {
	StlFile string
	Stamp   time.Time

	cmd    *exec.Cmd
	lock   *renderlock.Lock
	logger zerolog.Logger
}

// Pid returns the renderer process id.
func (j *Job) Pid() int { return j.cmd.Process.Pid }

// Wait blocks until the renderer exits, then finishes the job. A
// non-zero exit surfaces as *RenderError. The lock is released on
// every path.
func (j *Job) Wait() error {
	if err := j.cmd.Wait(); err != nil {
		j.lock.Release()
		return &RenderError{Path: j.StlFile, Err: err}
	}
	return j.finish()
}

// finish stamps the fresh artifact with the expected logical time and
// releases the render lock. Only after the stamp does an up-to-date
// check observe the artifact as ready.
func (j *Job) finish() error {
	if err := stale.Stamp(j.StlFile, j.Stamp); err != nil {
		j.lock.Release()
		return fmt.Errorf("stamp %s: %w", j.StlFile, err)
	}
	j.logger.Info().
		Str("file", j.StlFile).
		Time("stamp", j.Stamp).
		Msg("binary generated")
	return j.lock.Release()
}

// GenerateBinary starts the external renderer for this node's binary
// artifact. It returns (nil, nil) when there is nothing to do: the
// artifact is already up to date, the node is non-rigid, or another
// live process holds the render lock. Otherwise it acquires the lock,
// removes the stale artifact, starts the renderer asynchronously and
// returns the pending job.
func (n *Node) GenerateBinary(r Renderer) (*Job, error) {
	if !n.rigid {
		return nil, nil
	}
	logical, err := n.LogicalTime()
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}
	if stale.UpToDate(n.paths.StlFile, logical) {
		return nil, nil
	}

	lock, err := renderlock.Acquire(n.paths.LockFile)
	if errors.Is(err, renderlock.ErrHeld) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}

	if err := os.Remove(n.paths.StlFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		lock.Release()
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}

	cmd := r.command(n.paths.ScadFile, n.paths.StlFile)
	if err := cmd.Start(); err != nil {
		lock.Release()
		return nil, fmt.Errorf("node %s: start renderer: %w", n.name, err)
	}

	return &Job{
		StlFile: n.paths.StlFile,
		Stamp:   logical,
		cmd:     cmd,
		lock:    lock,
		logger:  n.logger,
	}, nil
}

// RenderTree assembles this node, walks its children, and triggers
// binary generation for each of them and then for itself. The first
// pending job propagates up immediately; the caller waits on it and
// restarts the walk.
func (n *Node) RenderTree(r Renderer) (*Job, error) {
	if _, err := n.Assemble(""); err != nil {
		return nil, err
	}
	for _, c := range n.children {
		job, err := c.RenderTree(r)
		if job != nil || err != nil {
			return job, err
		}
	}
	return n.GenerateBinary(r)
}
