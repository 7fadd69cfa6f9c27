package schedule

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/hb9tf/chirpsounder/sounding"
)

const markerSuffix = ".done"

// Lease grants one worker out of many the exclusive right to analyze an item.
type Lease interface {
	// TryAcquire returns false without error if someone else holds the item.
	TryAcquire(item, owner string) (bool, error)
	// Held reports whether the item was already acquired by anyone.
	Held(item string) (bool, error)
}

// MarkerPath is the coordination marker of a parameter file.
func MarkerPath(item string) string {
	return item + markerSuffix
}

type marker struct {
	// TAn is the claim time in Unix seconds.
	TAn    float64 `json:"t_an"`
	Worker string  `json:"worker"`
}

// FileLease claims an item by exclusively creating its marker file next to it.
// Exclusive creation works across processes and machines sharing the
// filesystem.
type FileLease struct {
	Now func() time.Time
}

func (l FileLease) TryAcquire(item, owner string) (bool, error) {
	path := MarkerPath(item)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("unable to create marker %q: %w", path, err)
	}
	defer f.Close()

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	// The claim is already ours, marker content is informational only.
	if err := json.NewEncoder(f).Encode(marker{TAn: sounding.Seconds(now()), Worker: owner}); err != nil {
		return true, fmt.Errorf("unable to write marker %q: %w", path, err)
	}
	return true, nil
}

func (l FileLease) Held(item string) (bool, error) {
	_, err := os.Stat(MarkerPath(item))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
