package output

import (
	"github.com/advdv/osmhttp"
	"github.com/cockroachdb/errors"
)

// ErrWrite marks errors that happened while writing to the client. Processing of the request should be
// aborted, there is nobody left to tell.
var ErrWrite = errors.New("output write error")

// DefaultFlushThreshold is the number of buffered bytes after which writers pass them on.
const DefaultFlushThreshold = 32 * 1024

// sink buffers bytes for a writer and remembers the first write error.
type sink struct {
	out       osmhttp.OutputBuffer
	buf       []byte
	threshold int
	err       error
}

func newSink(out osmhttp.OutputBuffer) sink {
	return sink{out: out, buf: make([]byte, 0, DefaultFlushThreshold), threshold: DefaultFlushThreshold}
}

func (s *sink) write(p string) {
	if s.err != nil {
		return
	}

	s.buf = append(s.buf, p...)
	if len(s.buf) >= s.threshold {
		s.flushBuf()
	}
}

func (s *sink) writeBytes(p []byte) {
	if s.err != nil {
		return
	}

	s.buf = append(s.buf, p...)
	if len(s.buf) >= s.threshold {
		s.flushBuf()
	}
}

func (s *sink) flushBuf() {
	if s.err != nil || len(s.buf) == 0 {
		return
	}

	_, err := s.out.Write(s.buf)
	s.buf = s.buf[:0]
	if err != nil {
		s.err = errors.Mark(errors.Wrap(err, "write output"), ErrWrite)
	}
}

// Flush passes all buffered bytes on and flushes the output buffer.
func (s *sink) Flush() error {
	s.flushBuf()
	if s.err != nil {
		return s.err
	}

	if err := s.out.Flush(); err != nil {
		s.err = errors.Mark(errors.Wrap(err, "flush output"), ErrWrite)
	}

	return s.err
}

// Err returns the first error that happened while writing.
func (s *sink) Err() error { return s.err }
