// Package pool describes a fixed size set of independent worker processes.
// Workers only know their own rank and the pool size, they never talk to each
// other.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/golang/glog"
)

type Worker struct {
	Rank int
	Size int
}

func (w Worker) Validate() error {
	if w.Size <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", w.Size)
	}
	if w.Rank < 0 || w.Rank >= w.Size {
		return fmt.Errorf("rank %d out of range for pool size %d", w.Rank, w.Size)
	}
	return nil
}

// Owns reports whether item i of a shared list belongs to this worker.
func (w Worker) Owns(i int) bool {
	return i%w.Size == w.Rank
}

// Partition returns the indices out of n items that belong to this worker.
func (w Worker) Partition(n int) []int {
	var idx []int
	for i := w.Rank; i < n; i += w.Size {
		idx = append(idx, i)
	}
	return idx
}

func (w Worker) String() string {
	return fmt.Sprintf("%d/%d", w.Rank, w.Size)
}

// Launcher starts Size copies of a binary, each with its own -rank and the
// shared -size flag appended to Args.
type Launcher struct {
	Path string
	Args []string
	Size int

	Stdout io.Writer
	Stderr io.Writer
}

func (l *Launcher) command(ctx context.Context, rank int) *exec.Cmd {
	args := append([]string{}, l.Args...)
	args = append(args, "-rank", strconv.Itoa(rank), "-size", strconv.Itoa(l.Size))
	cmd := exec.CommandContext(ctx, l.Path, args...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// Run starts all workers and waits for them to exit.
func (l *Launcher) Run(ctx context.Context) error {
	if l.Size <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", l.Size)
	}
	errs := make([]error, l.Size)
	var wg sync.WaitGroup
	for rank := 0; rank < l.Size; rank++ {
		cmd := l.command(ctx, rank)
		glog.Infof("Starting worker %d/%d: %q", rank, l.Size, cmd)
		if err := cmd.Start(); err != nil {
			errs[rank] = fmt.Errorf("unable to start worker %d: %w", rank, err)
			continue
		}
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if err := cmd.Wait(); err != nil {
				glog.Warningf("worker %d exited: %s", rank, err)
				errs[rank] = fmt.Errorf("worker %d: %w", rank, err)
			}
		}(rank)
	}
	wg.Wait()
	return errors.Join(errs...)
}
