package process

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/output"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	authChallenge = `Basic realm="OpenStreetMap login required", charset="UTF-8"`
	textPlain     = "text/plain; charset=utf-8"
	textHTML      = "text/html; charset=utf-8"
	textXML       = "text/xml; charset=utf-8"
)

// respondError turns err into the response. Once the body was started the status can't change anymore and
// the error is only logged.
func (s *Server) respondError(ctx context.Context, ex *exchange, err error) {
	if ex.req.Stage() >= osmhttp.StageBody {
		if errors.Is(err, output.ErrWrite) {
			s.logs.LogAbortedResponse(err)
		} else {
			s.logs.LogUnhandledError(err)
		}

		if ex.req.Stage() < osmhttp.StageFinished {
			if ferr := ex.req.Finish(); ferr != nil {
				s.logs.LogTeardownError(ferr)
			}
		}

		return
	}

	herr, ok := osmhttp.AsError(err)
	if !ok {
		s.logs.LogUnhandledError(err)
		herr = osmhttp.NewError(osmhttp.CodeInternalServerError, err)
	}

	Log(ctx).Debug("responding with error", zap.Int("code", int(herr.Code())), zap.Error(err))

	if err := s.writeError(ex, herr); err != nil {
		s.logs.LogTeardownError(err)
	}
}

func (s *Server) writeError(ex *exchange, herr *osmhttp.Error) error {
	req := ex.req
	if err := req.Reset(); err != nil {
		return err
	}

	code := herr.Code()
	switch code {
	case osmhttp.CodeNotFound:
		return finishEmpty(req, code)
	case osmhttp.CodeMethodNotAllowed:
		return finishEmpty(req, code, "Allow", ex.allowed.String())
	}

	var kv []string
	switch code {
	case osmhttp.CodeUnauthorized:
		kv = append(kv, "WWW-Authenticate", authChallenge)
	case osmhttp.CodeUnsupportedMediaType:
		kv = append(kv, "Accept-Encoding", "gzip, deflate")
	}

	if secs := herr.RetryAfter(); secs > 0 {
		kv = append(kv, "Retry-After", strconv.Itoa(secs))
	}

	// 401 and 415 keep their status so clients see the challenge and the accepted encodings
	asXML := code != osmhttp.CodeUnauthorized && code != osmhttp.CodeUnsupportedMediaType &&
		strings.EqualFold(req.HTTP().Header.Get("X-Error-Format"), "xml")
	if asXML {
		return writeXMLError(req, herr, kv)
	}

	return writeTextError(req, herr, kv)
}

// finishEmpty ends the response with headers only.
func finishEmpty(req *osmhttp.Request, code osmhttp.Code, kv ...string) error {
	if err := req.SetStatus(int(code)); err != nil {
		return err
	}

	kv = append(kv,
		"Content-Type", textHTML,
		"Content-Length", "0",
		"Cache-Control", "no-cache")
	if err := addHeaders(req, kv...); err != nil {
		return err
	}

	return req.Finish()
}

func writeTextError(req *osmhttp.Request, herr *osmhttp.Error, kv []string) error {
	msg := herr.Message()
	if err := req.SetStatus(int(herr.Code())); err != nil {
		return err
	}

	kv = append(kv,
		"Content-Type", textPlain,
		"Content-Length", strconv.Itoa(len(msg)),
		"Error", headerSafe(msg),
		"Cache-Control", "no-cache")
	if err := addHeaders(req, kv...); err != nil {
		return err
	}

	buf, err := req.Buffer()
	if err != nil {
		return err
	}

	if _, err := buf.Write([]byte(msg)); err != nil {
		return errors.CombineErrors(err, req.Finish())
	}

	return req.Finish()
}

// writeXMLError wraps the error in an osmError document. The status is always 200, the actual one is part of
// the document.
func writeXMLError(req *osmhttp.Request, herr *osmhttp.Error, kv []string) error {
	if err := req.SetStatus(http.StatusOK); err != nil {
		return err
	}

	kv = append(kv, "Content-Type", textXML)
	if err := addHeaders(req, kv...); err != nil {
		return err
	}

	buf, err := req.Buffer()
	if err != nil {
		return err
	}

	w := output.NewXMLWriter(buf)
	w.Start("osmError")
	w.Start("status")
	w.Text(osmhttp.StatusLine(herr.Code()))
	w.End()
	w.Start("message")
	w.Text(herr.Message())
	w.End()
	w.Close()

	return errors.CombineErrors(w.Err(), req.Finish())
}

// headerSafe replaces the control characters a header value can't carry.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
