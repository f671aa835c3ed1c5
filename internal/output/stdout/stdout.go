package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hejijunhao/mosaiq/internal/model"
	"github.com/hejijunhao/mosaiq/internal/output"
)

// Output writes progress events to stdout (or any writer), one per line,
// either as JSON or as human-readable text.
type Output struct {
	verbosity output.Verbosity

	mu   sync.Mutex
	w    io.Writer
	enc  *json.Encoder // nil in text mode
	text bool
}

// New creates a stdout Output with verbosity-aware field omission and
// optional pretty-printed JSON.
func New(verbosity output.Verbosity, pretty bool) *Output {
	return NewWriter(os.Stdout, verbosity, pretty)
}

// NewWriter is New for an arbitrary writer.
func NewWriter(w io.Writer, verbosity output.Verbosity, pretty bool) *Output {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Output{w: w, enc: enc, verbosity: verbosity}
}

// NewText writes one line of text per event to w, for terminals:
//
//	[2/5] article-1 completed: physics 0.70, astronomy 0.41
//
// Minimal verbosity omits concepts and errors.
func NewText(w io.Writer, verbosity output.Verbosity) *Output {
	return &Output{w: w, verbosity: verbosity, text: true}
}

func (o *Output) Write(_ context.Context, event model.ProgressEvent) error {
	formatted := output.FormatEvent(event, o.verbosity)
	o.mu.Lock()
	defer o.mu.Unlock()

	var err error
	if o.text {
		_, err = io.WriteString(o.w, textLine(formatted))
	} else {
		err = o.enc.Encode(formatted)
	}
	if err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}

func textLine(ev model.ProgressEvent) string {
	var b strings.Builder
	if ev.BatchID != "" {
		fmt.Fprintf(&b, "[%d/%d] ", ev.Processed, ev.Total)
	}
	b.WriteString(ev.ContentID)
	b.WriteByte(' ')
	b.WriteString(string(ev.State))
	for i, c := range ev.Concepts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %.2f", c.ConceptID, c.Confidence)
	}
	if ev.Error != "" {
		b.WriteString(" (")
		b.WriteString(ev.Error)
		b.WriteByte(')')
	}
	b.WriteByte('\n')
	return b.String()
}
