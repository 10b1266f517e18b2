package output

import (
	"strconv"
	"strings"

	"github.com/advdv/osmhttp"
	"github.com/cockroachdb/errors"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

var (
	attrEscaper = strings.NewReplacer(
		`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;",
		"\n", "&#10;", "\r", "&#13;", "\t", "&#9;")
	textEscaper = strings.NewReplacer(
		`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", "\r", "&#13;")
)

type xmlLevel struct {
	name     string
	children bool
	text     bool
}

// XMLWriter emits an indented XML document incrementally.
type XMLWriter struct {
	sink
	stack     []xmlLevel
	startOpen bool
}

// NewXMLWriter starts a document by writing the XML declaration.
func NewXMLWriter(out osmhttp.OutputBuffer) *XMLWriter {
	w := &XMLWriter{sink: newSink(out)}
	w.write(xmlHeader)
	return w
}

// Start opens a new element inside the current one.
func (w *XMLWriter) Start(name string) {
	if depth := len(w.stack); depth > 0 {
		if w.startOpen {
			w.write(">")
		}
		w.stack[depth-1].children = true
		w.write("\n")
		w.write(strings.Repeat("  ", depth))
	}

	w.write("<")
	w.write(name)
	w.stack = append(w.stack, xmlLevel{name: name})
	w.startOpen = true
}

// Attr adds an attribute to the element that was just started.
func (w *XMLWriter) Attr(name, value string) {
	if !w.startOpen {
		if w.err == nil {
			w.err = errors.Newf("attribute %q written outside of a start tag", name)
		}
		return
	}

	w.write(" ")
	w.write(name)
	w.write(`="`)
	w.write(attrEscaper.Replace(value))
	w.write(`"`)
}

// AttrInt adds an integer attribute.
func (w *XMLWriter) AttrInt(name string, v int64) { w.Attr(name, strconv.FormatInt(v, 10)) }

// AttrFloat adds a floating point attribute with seven fraction digits.
func (w *XMLWriter) AttrFloat(name string, v float64) { w.Attr(name, formatFloat(v)) }

// AttrBool adds a boolean attribute.
func (w *XMLWriter) AttrBool(name string, v bool) { w.Attr(name, strconv.FormatBool(v)) }

// Text writes escaped character data into the current element.
func (w *XMLWriter) Text(s string) {
	if len(w.stack) == 0 {
		return
	}

	if w.startOpen {
		w.write(">")
		w.startOpen = false
	}

	w.write(textEscaper.Replace(s))
	w.stack[len(w.stack)-1].text = true
}

// End closes the current element.
func (w *XMLWriter) End() {
	depth := len(w.stack)
	if depth == 0 {
		return
	}

	top := w.stack[depth-1]
	w.stack = w.stack[:depth-1]

	switch {
	case w.startOpen:
		w.write("/>")
		w.startOpen = false
	case top.children && !top.text:
		w.write("\n")
		w.write(strings.Repeat("  ", depth-1))
		fallthrough
	default:
		w.write("</")
		w.write(top.name)
		w.write(">")
	}

	if len(w.stack) == 0 {
		w.write("\n")
	}
}

// Close ends all open elements and flushes. Errors are swallowed, check [XMLWriter.Err] if it matters.
func (w *XMLWriter) Close() {
	for len(w.stack) > 0 {
		w.End()
	}
	_ = w.Flush()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 7, 64) }
