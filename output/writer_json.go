package output

import (
	"strconv"

	"github.com/advdv/osmhttp"
	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
)

type jsonFrame struct {
	array bool
	count int
}

// JSONWriter emits a compact JSON document incrementally.
type JSONWriter struct {
	sink
	stack    []jsonFrame
	afterKey bool
}

// NewJSONWriter inits a writer that streams into out.
func NewJSONWriter(out osmhttp.OutputBuffer) *JSONWriter {
	return &JSONWriter{sink: newSink(out)}
}

// StartObject opens an object.
func (w *JSONWriter) StartObject() { w.open(false, "{") }

// EndObject closes the current object.
func (w *JSONWriter) EndObject() { w.close(false, "}") }

// StartArray opens an array.
func (w *JSONWriter) StartArray() { w.open(true, "[") }

// EndArray closes the current array.
func (w *JSONWriter) EndArray() { w.close(true, "]") }

// InArray reports whether the innermost open level is an array.
func (w *JSONWriter) InArray() bool {
	return len(w.stack) > 0 && w.stack[len(w.stack)-1].array
}

// Key writes the key of the next property of the current object.
func (w *JSONWriter) Key(k string) {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].array || w.afterKey {
		if w.err == nil {
			w.err = errors.Newf("key %q written outside of an object", k)
		}
		return
	}

	if w.stack[n-1].count > 0 {
		w.write(",")
	}
	w.stack[n-1].count++

	w.writeString(k)
	w.write(":")
	w.afterKey = true
}

// String writes a string value.
func (w *JSONWriter) String(v string) {
	w.beforeValue()
	w.writeString(v)
}

// Int writes an integer value.
func (w *JSONWriter) Int(v int64) {
	w.beforeValue()
	w.write(strconv.FormatInt(v, 10))
}

// Float writes a number with seven fraction digits.
func (w *JSONWriter) Float(v float64) {
	w.beforeValue()
	w.write(formatFloat(v))
}

// Bool writes a boolean value.
func (w *JSONWriter) Bool(v bool) {
	w.beforeValue()
	w.write(strconv.FormatBool(v))
}

// Error embeds an error at the current position: as an object when inside an array, as a property
// when inside an object.
func (w *JSONWriter) Error(msg string) {
	if len(w.stack) == 0 || w.InArray() {
		w.StartObject()
		w.Key("error")
		w.String(msg)
		w.EndObject()
		return
	}

	if w.afterKey {
		w.String(msg)
		return
	}

	w.Key("error")
	w.String(msg)
}

// Close ends all open levels and flushes. Errors are swallowed, check [JSONWriter.Err] if it matters.
func (w *JSONWriter) Close() {
	if w.afterKey {
		w.beforeValue()
		w.write("null")
	}

	for len(w.stack) > 0 {
		if w.InArray() {
			w.EndArray()
		} else {
			w.EndObject()
		}
	}
	_ = w.Flush()
}

func (w *JSONWriter) open(array bool, tok string) {
	w.beforeValue()
	w.write(tok)
	w.stack = append(w.stack, jsonFrame{array: array})
}

func (w *JSONWriter) close(array bool, tok string) {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].array != array || w.afterKey {
		if w.err == nil {
			w.err = errors.Newf("unbalanced %q", tok)
		}
		return
	}

	w.stack = w.stack[:n-1]
	w.write(tok)
}

func (w *JSONWriter) beforeValue() {
	if w.afterKey {
		w.afterKey = false
		return
	}

	if n := len(w.stack); n > 0 && w.stack[n-1].array {
		if w.stack[n-1].count > 0 {
			w.write(",")
		}
		w.stack[n-1].count++
	}
}

func (w *JSONWriter) writeString(s string) {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		if w.err == nil {
			w.err = errors.Wrap(err, "encode string")
		}
		return
	}
	w.writeBytes(b)
}
