package sdr

import (
	"context"
	"errors"
	"io"
)

// Converter turns interleaved 8 bit IQ bytes into samples, len(src) == 2*len(dst).
type Converter func(dst []complex64, src []byte)

// ReadBlocks reads interleaved IQ bytes from r until EOF and emits blocks of
// blockSize samples. The first sample has absolute index start. A trailing
// partial block is emitted as well.
func ReadBlocks(ctx context.Context, r io.Reader, start int64, blockSize int, conv Converter, blocks chan<- Block) error {
	if blockSize <= 0 {
		return errors.New("block size must be positive")
	}
	buf := make([]byte, 2*blockSize)
	idx := start
	for {
		n, err := io.ReadFull(r, buf)
		if n >= 2 {
			samples := make([]complex64, n/2)
			conv(samples, buf[:2*len(samples)])
			select {
			case blocks <- Block{Start: idx, Samples: samples}:
			case <-ctx.Done():
				return ctx.Err()
			}
			idx += int64(len(samples))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
