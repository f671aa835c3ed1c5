package output

import (
	"context"

	"github.com/hejijunhao/mosaiq/internal/model"
)

// Output defines the interface for progress event destinations.
type Output interface {
	Write(ctx context.Context, event model.ProgressEvent) error
	Close() error
}
