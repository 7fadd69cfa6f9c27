// Package export streams ionogram catalog entries to a sink.
package export

import (
	"context"

	"github.com/hb9tf/chirpsounder/ionogram"
)

type Exporter interface {
	Write(context.Context, <-chan ionogram.Summary) error
}
