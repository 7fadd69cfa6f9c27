package pool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionExhaustiveAndDisjoint(t *testing.T) {
	for n := 0; n < 40; n++ {
		for size := 1; size < 7; size++ {
			seen := map[int]int{}
			for rank := 0; rank < size; rank++ {
				w := Worker{Rank: rank, Size: size}
				for _, i := range w.Partition(n) {
					assert.True(t, w.Owns(i))
					seen[i]++
				}
			}
			require.Len(t, seen, n, "n=%d size=%d", n, size)
			for i, count := range seen {
				assert.Equal(t, 1, count, "item %d n=%d size=%d", i, n, size)
			}
		}
	}
}

func TestWorkerValidate(t *testing.T) {
	assert.NoError(t, Worker{Rank: 0, Size: 1}.Validate())
	assert.NoError(t, Worker{Rank: 3, Size: 4}.Validate())
	assert.Error(t, Worker{Rank: 0, Size: 0}.Validate())
	assert.Error(t, Worker{Rank: 4, Size: 4}.Validate())
	assert.Error(t, Worker{Rank: -1, Size: 4}.Validate())
}

// TestHelperProcess is not a real test, it is the worker binary started by
// the launcher tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("POOL_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	fmt.Println(strings.Join(args, " "))
	if len(args) > 1 && args[1] == "2" && os.Getenv("POOL_HELPER_FAIL") == "1" {
		os.Exit(3)
	}
	os.Exit(0)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func helperLauncher(t *testing.T, out *syncBuffer) *Launcher {
	t.Setenv("POOL_HELPER_PROCESS", "1")
	return &Launcher{
		Path:   os.Args[0],
		Args:   []string{"-test.run=TestHelperProcess", "--"},
		Size:   3,
		Stdout: out,
	}
}

func TestLauncherRun(t *testing.T) {
	out := &syncBuffer{}
	l := helperLauncher(t, out)

	require.NoError(t, l.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.buf.String()), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{
		"-rank 0 -size 3",
		"-rank 1 -size 3",
		"-rank 2 -size 3",
	}, lines)
}

func TestLauncherReportsFailedWorker(t *testing.T) {
	out := &syncBuffer{}
	l := helperLauncher(t, out)
	t.Setenv("POOL_HELPER_FAIL", "1")

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker 2")
}
