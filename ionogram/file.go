package ionogram

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"

	"github.com/hb9tf/chirpsounder/sounding"
)

const (
	dirFmt     = "2006-01-02"
	fileSuffix = ".json.zst"
)

// file is the on-disk layout of an ionogram.
type file struct {
	S      [][]float64 `json:"S"`
	Freqs  []float64   `json:"freqs"`
	Ranges []float64   `json:"ranges"`
	T0     float64     `json:"t0"`
	Rate   float64     `json:"rate"`
	SR     float64     `json:"sr"`
	ID     int         `json:"id"`
	Ch     string      `json:"ch"`
	// Z holds [re, im] pairs.
	Z [][2]float32 `json:"z,omitempty"`
}

// DirName is the per-day output subdirectory for t.
func DirName(t time.Time) string {
	return t.UTC().Format(dirFmt)
}

// FileName of the ionogram of sounder id starting at t.
func FileName(id int, t time.Time) string {
	return fmt.Sprintf("lfm_ionogram-%03d-%1.2f%s", id, sounding.Seconds(t), fileSuffix)
}

type Writer struct {
	Dir string
	// SaveRaw also stores the decimated record.
	SaveRaw bool
}

// Write stores the ionogram below the date directory of its start time and
// returns the path of the file.
func (w *Writer) Write(iono *Ionogram) (string, error) {
	dir := filepath.Join(w.Dir, DirName(iono.Start))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create output directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(iono.SounderID, iono.Start))
	glog.Infof("Writing to %s", path)

	f := file{
		S:      iono.Power,
		Freqs:  iono.Freqs,
		Ranges: iono.Ranges,
		T0:     sounding.Seconds(iono.Start),
		Rate:   iono.ChirpRate,
		SR:     iono.SampleRate,
		ID:     iono.SounderID,
		Ch:     iono.Channel,
	}
	if w.SaveRaw {
		f.Z = make([][2]float32, len(iono.Raw))
		for i, v := range iono.Raw {
			f.Z[i] = [2]float32{real(v), imag(v)}
		}
	}

	tmp := path + ".tmp"
	if err := writeFile(tmp, &f); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("unable to rename %q: %w", tmp, err)
	}
	return path, nil
}

func writeFile(path string, f *file) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", path, err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(f); err != nil {
		enc.Close()
		return fmt.Errorf("unable to encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("unable to compress %q: %w", path, err)
	}
	return out.Close()
}

// Read loads an ionogram written by Writer.
func Read(path string) (*Ionogram, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var f file
	if err := json.NewDecoder(dec).Decode(&f); err != nil {
		return nil, fmt.Errorf("unable to decode %q: %w", path, err)
	}
	iono := &Ionogram{
		Power:      f.S,
		Freqs:      f.Freqs,
		Ranges:     f.Ranges,
		Start:      sounding.SecondsTime(f.T0),
		ChirpRate:  f.Rate,
		SounderID:  f.ID,
		Channel:    f.Ch,
		SampleRate: f.SR,
	}
	for _, z := range f.Z {
		iono.Raw = append(iono.Raw, complex(z[0], z[1]))
	}
	return iono, nil
}
