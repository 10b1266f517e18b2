package osmhttp

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/http/httpguts"
)

// Stage of the request workflow. Stages only ever move forward.
type Stage int

const (
	StageNone Stage = iota
	StageHeaders
	StageBody
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageHeaders:
		return "HEADERS"
	case StageBody:
		return "BODY"
	case StageFinished:
		return "FINISHED"
	default:
		return "NONE"
	}
}

// ErrWorkflowViolation is returned when the response is manipulated out of order. It is a programming
// error and never reported to the client.
var ErrWorkflowViolation = errors.New("request workflow violation")

// corsMaxAge is the number of seconds a preflight response may be cached.
const corsMaxAge = "1728000"

type header struct{ key, value string }

// Request guards the lifecycle of a single response: status and headers first, then the body,
// then nothing.
type Request struct {
	req  *http.Request
	resp http.ResponseWriter

	stage          Stage
	status         int
	headers        []header
	successHeaders []header
	methods        Method
	buf            *ResponseBuffer
}

// NewRequest starts the workflow for responding to req. The status defaults to 500 so that a handler
// which forgets to set it never looks successful.
func NewRequest(resp http.ResponseWriter, req *http.Request) *Request {
	return &Request{
		req:     req,
		resp:    resp,
		status:  http.StatusInternalServerError,
		methods: MethodsRead,
	}
}

// HTTP returns the inbound request.
func (r *Request) HTTP() *http.Request { return r.req }

// Stage returns the current workflow stage.
func (r *Request) Stage() Stage { return r.stage }

// Status returns the status that is, or will be, sent.
func (r *Request) Status() int { return r.status }

// SetDefaultMethods sets the methods that are advertised through the CORS headers.
func (r *Request) SetDefaultMethods(m Method) { r.methods = m }

// SetStatus sets the response status code, the last call wins.
func (r *Request) SetStatus(code int) error {
	if err := r.checkWorkflow(StageHeaders); err != nil {
		return err
	}

	r.status = code
	return nil
}

// AddHeader adds a header that is sent regardless of the status.
func (r *Request) AddHeader(key, value string) error {
	if err := r.checkWorkflow(StageHeaders); err != nil {
		return err
	}

	return r.appendHeader(&r.headers, key, value)
}

// AddSuccessHeader adds a header that is only sent when the final status is 200.
func (r *Request) AddSuccessHeader(key, value string) error {
	if err := r.checkWorkflow(StageHeaders); err != nil {
		return err
	}

	return r.appendHeader(&r.successHeaders, key, value)
}

// Buffer returns the output buffer for the body. The first call sends the status and headers.
func (r *Request) Buffer() (*ResponseBuffer, error) {
	if err := r.checkWorkflow(StageBody); err != nil {
		return nil, err
	}

	return r.buf, nil
}

// Finish completes the response. Status and headers are sent if no body was written.
func (r *Request) Finish() error {
	if err := r.checkWorkflow(StageFinished); err != nil {
		return err
	}

	return r.buf.Close()
}

// Reset drops the status and all headers so a different response can be formulated. It is only legal
// as long as nothing was sent.
func (r *Request) Reset() error {
	if r.stage >= StageBody {
		return errors.Wrapf(ErrWorkflowViolation, "can't reset the response in stage %s", r.stage)
	}

	r.stage = StageNone
	r.status = http.StatusInternalServerError
	r.headers, r.successHeaders = nil, nil

	return nil
}

func (r *Request) appendHeader(dst *[]header, key, value string) error {
	if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
		return errors.Wrapf(ErrWorkflowViolation, "invalid header %q", key)
	}

	*dst = append(*dst, header{key, value})
	return nil
}

func (r *Request) checkWorkflow(next Stage) error {
	if next < r.stage || r.stage == StageFinished {
		return errors.Wrapf(ErrWorkflowViolation,
			"can't move backwards in the request workflow from %s to %s", r.stage, next)
	}

	if r.stage < StageHeaders && next >= StageHeaders {
		r.setDefaultHeaders()
	}

	if r.stage < StageBody && next >= StageBody {
		r.writeHeaderInfo()
	}

	r.stage = next
	return nil
}

func (r *Request) setDefaultHeaders() {
	origin := r.req.Header.Get("Origin")
	if origin == "" {
		return
	}

	r.headers = append(r.headers,
		header{"Access-Control-Allow-Credentials", "true"},
		header{"Access-Control-Allow-Methods", r.methods.String()},
		header{"Access-Control-Allow-Origin", origin},
		header{"Access-Control-Max-Age", corsMaxAge},
	)
}

func (r *Request) writeHeaderInfo() {
	hdr := r.resp.Header()
	for _, h := range r.headers {
		hdr.Add(h.key, h.value)
	}

	if r.status == http.StatusOK {
		for _, h := range r.successHeaders {
			hdr.Add(h.key, h.value)
		}
	}

	r.resp.WriteHeader(r.status)
	r.buf = NewResponseBuffer(r.resp)
}

// StatusLine formats the status the way it appears in error documents, e.g. "404 Not Found".
func StatusLine(code Code) string {
	return strconv.Itoa(int(code)) + " " + code.Text()
}
