package transcript

import (
	"context"
	"errors"

	"github.com/ppiankov/scopeguard/internal/model"
)

// Appender is any write-once transcript sink.
type Appender interface {
	Append(ctx context.Context, entry model.TranscriptEntry) error
}

// Multi appends each entry to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Appender

// Append implements Appender.
func (m Multi) Append(ctx context.Context, entry model.TranscriptEntry) error {
	var errs []error
	for _, a := range m {
		if err := a.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
