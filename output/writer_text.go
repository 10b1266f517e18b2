package output

import "github.com/advdv/osmhttp"

// TextWriter writes text as is.
type TextWriter struct {
	sink
}

// NewTextWriter inits a writer that streams into out.
func NewTextWriter(out osmhttp.OutputBuffer) *TextWriter {
	return &TextWriter{sink: newSink(out)}
}

// Text writes s unmodified.
func (w *TextWriter) Text(s string) { w.write(s) }

// Close flushes, errors are swallowed.
func (w *TextWriter) Close() { _ = w.Flush() }
