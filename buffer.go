package osmhttp

import (
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// OutputBuffer is the sink that document writers stream into.
type OutputBuffer interface {
	io.Writer
	// Written reports the number of bytes that reached the underlying connection.
	Written() int64
	Close() error
	Flush() error
}

// ErrBufferClosed is returned when writing to a buffer after it was closed.
var ErrBufferClosed = errors.New("write to closed output buffer")

// ResponseBuffer writes directly to the response of an http request.
type ResponseBuffer struct {
	resp    http.ResponseWriter
	ctrl    *http.ResponseController
	written int64
	closed  bool
}

// NewResponseBuffer inits an output buffer that writes to resp.
func NewResponseBuffer(resp http.ResponseWriter) *ResponseBuffer {
	return &ResponseBuffer{resp: resp, ctrl: http.NewResponseController(resp)}
}

func (b *ResponseBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBufferClosed
	}

	n, err := b.resp.Write(p)
	b.written += int64(n)
	if err != nil {
		return n, errors.Wrap(err, "write response")
	}

	return n, nil
}

func (b *ResponseBuffer) Written() int64 { return b.written }

func (b *ResponseBuffer) Flush() error {
	if err := b.ctrl.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return errors.Wrap(err, "flush response")
	}
	return nil
}

func (b *ResponseBuffer) Close() error {
	if b.closed {
		return nil
	}

	b.closed = true
	return b.Flush()
}

// compressor is implemented by both the gzip and the zlib writers.
type compressor interface {
	io.WriteCloser
	Flush() error
	Reset(w io.Writer)
}

var (
	gzipWriterPool = sync.Pool{New: func() any { return gzip.NewWriter(io.Discard) }}
	zlibWriterPool = sync.Pool{New: func() any { return zlib.NewWriter(io.Discard) }}
)

// compressedBuffer compresses everything written to it before passing it on.
type compressedBuffer struct {
	out    OutputBuffer
	zw     compressor
	pool   *sync.Pool
	closed bool
}

// NewGzipBuffer decorates out with gzip compression.
func NewGzipBuffer(out OutputBuffer) OutputBuffer {
	return newCompressedBuffer(out, &gzipWriterPool)
}

// NewDeflateBuffer decorates out with zlib framed deflate compression, which is what
// browsers expect for the "deflate" content encoding.
func NewDeflateBuffer(out OutputBuffer) OutputBuffer {
	return newCompressedBuffer(out, &zlibWriterPool)
}

func newCompressedBuffer(out OutputBuffer, pool *sync.Pool) *compressedBuffer {
	zw, _ := pool.Get().(compressor)
	zw.Reset(out)

	return &compressedBuffer{out: out, zw: zw, pool: pool}
}

func (b *compressedBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBufferClosed
	}

	n, err := b.zw.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "compress")
	}

	return n, nil
}

func (b *compressedBuffer) Written() int64 { return b.out.Written() }

func (b *compressedBuffer) Flush() error {
	if b.closed {
		return nil
	}

	if err := b.zw.Flush(); err != nil {
		return errors.Wrap(err, "flush compressor")
	}

	return b.out.Flush()
}

func (b *compressedBuffer) Close() error {
	if b.closed {
		return nil
	}

	b.closed = true
	err := b.zw.Close()

	b.zw.Reset(io.Discard)
	b.pool.Put(b.zw)

	if err != nil {
		return errors.Wrap(err, "close compressor")
	}

	return b.out.Close()
}
