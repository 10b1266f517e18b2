package process

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/advdv/osmhttp"
	"github.com/advdv/osmhttp/handler"
	"github.com/advdv/osmhttp/mime"
	"github.com/advdv/osmhttp/oauth2"
	"github.com/advdv/osmhttp/output"
	"github.com/advdv/osmhttp/responder"
	"github.com/advdv/osmhttp/selection"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"
)

// exchange is the state of one request while it is processed.
type exchange struct {
	req       *osmhttp.Request
	route     string
	logName   string
	allowed   osmhttp.Method
	identity  handler.Identity
	clientKey string
	bytes     int64
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, route string, c handler.Constructor) {
	start := s.now()

	ctx := withLogger(r.Context(), s.zlog.With(zap.String("request_id", uuid.NewString())))
	r = r.WithContext(ctx)

	ex := &exchange{
		req:       osmhttp.NewRequest(w, r),
		route:     route,
		logName:   r.Method,
		allowed:   osmhttp.MethodsRead,
		clientKey: addrKey(r),
	}

	defer func() {
		if v := recover(); v != nil {
			s.respondError(ctx, ex, osmhttp.NewErrorf(osmhttp.CodeInternalServerError, "%v", v))
			s.complete(ctx, ex, start)
			panic(v)
		}
	}()

	if err := s.run(ctx, ex, c); err != nil {
		s.respondError(ctx, ex, err)
	}

	s.complete(ctx, ex, start)
}

func (s *Server) run(ctx context.Context, ex *exchange, c handler.Constructor) error {
	r := ex.req.HTTP()
	if c == nil {
		return osmhttp.NewErrorf(osmhttp.CodeNotFound, "")
	}

	h, err := c(r)
	if err != nil {
		return err
	} else if h == nil {
		return osmhttp.NewErrorf(osmhttp.CodeNotFound, "")
	}

	ex.logName, ex.allowed = h.LogName(), h.AllowedMethods()
	ex.req.SetDefaultMethods(ex.allowed)

	if ctx, err = s.authenticate(ctx, ex); err != nil {
		return err
	}

	method, known := osmhttp.ParseMethod(r.Method)
	if method != osmhttp.MethodOptions {
		if err := s.admit(ctx, ex); err != nil {
			return err
		}
	}

	if !known || !ex.allowed.Has(method) {
		return osmhttp.NewErrorf(osmhttp.CodeMethodNotAllowed, "")
	}

	switch method {
	case osmhttp.MethodGet:
		return s.get(ctx, ex, h, false)
	case osmhttp.MethodHead:
		return s.get(ctx, ex, h, true)
	case osmhttp.MethodPost, osmhttp.MethodPut:
		return s.post(ctx, ex, h)
	default:
		return s.options(ex)
	}
}

// authenticate resolves the identity of the client. Requests without a bearer token stay anonymous.
func (s *Server) authenticate(ctx context.Context, ex *exchange) (context.Context, error) {
	if s.users == nil {
		return ctx, nil
	}

	res, ok, err := oauth2.Authenticate(ctx, ex.req.HTTP(), s.users)
	if err != nil || !ok {
		return ctx, err
	}

	roles, err := s.users.GetRolesForUser(ctx, res.UserID)
	if err != nil {
		return ctx, errors.Wrapf(err, "get roles for user %d", res.UserID)
	}

	ex.identity = handler.Identity{UserID: res.UserID, Authenticated: true, AllowWrite: res.AllowWrite, Roles: roles}
	ex.clientKey = "user:" + strconv.FormatInt(res.UserID, 10)

	return handler.WithIdentity(ctx, ex.identity), nil
}

// admit asks the rate limiter whether the client may continue. A failing limiter admits everyone.
func (s *Server) admit(ctx context.Context, ex *exchange) error {
	allowed, retryAfter, err := s.limiter.Check(ctx, ex.clientKey, ex.identity.IsModerator())
	if err != nil {
		Log(ctx).Warn("rate limiter check failed, admitting request", zap.Error(err))
		return nil
	} else if allowed {
		return nil
	}

	s.metrics.rateLimited.Inc()
	return osmhttp.NewRetryableError(osmhttp.CodeTooManyRequests,
		errors.New("You have downloaded too much data. Please try again later."), retryAfter)
}

func (s *Server) get(ctx context.Context, ex *exchange, h handler.Handler, head bool) error {
	sel, err := s.selection(ctx, ex)
	if err != nil {
		return err
	}

	resp, err := h.Responder(ctx, sel)
	if err != nil {
		return err
	}

	return s.respond(ctx, ex, resp, head)
}

func (s *Server) post(ctx context.Context, ex *exchange, h handler.Handler) error {
	id := ex.identity
	if !id.Authenticated {
		return osmhttp.NewErrorf(osmhttp.CodeUnauthorized, "User is not authorized")
	}

	if s.users != nil {
		blocked, err := s.users.IsUserBlocked(ctx, id.UserID)
		if err != nil {
			return errors.Wrapf(err, "check block of user %d", id.UserID)
		} else if blocked {
			return osmhttp.NewErrorf(osmhttp.CodeForbidden,
				"Your access to the API has been blocked. Please log-in to the web interface to find out more.")
		}
	}

	if !id.AllowWrite {
		return osmhttp.NewErrorf(osmhttp.CodeUnauthorized, "You have not granted the modify map permission")
	}

	ph, ok := h.(handler.PayloadHandler)
	if !ok {
		return osmhttp.NewErrorf(osmhttp.CodeInternalServerError, "HTTP %s method is not payload enabled",
			ex.req.HTTP().Method)
	} else if s.updates == nil {
		return osmhttp.NewErrorf(osmhttp.CodeBadRequest, "Backend does not support POST requests")
	}

	upd, err := s.updates.MakeUpdate(ctx)
	if err != nil {
		return errors.Wrap(err, "make update")
	}

	defer func() {
		if err := upd.Rollback(context.WithoutCancel(ctx)); err != nil {
			Log(ctx).Warn("failed to roll back update", zap.Error(err))
		}
	}()

	if upd.IsReadOnly() {
		return osmhttp.NewErrorf(osmhttp.CodeBadRequest,
			"Server is currently in read only mode, no database changes allowed at this time")
	}

	payload, err := s.readPayload(ex.req.HTTP())
	if err != nil {
		return err
	}

	resp, err := ph.PayloadResponder(ctx, upd, payload)
	if err != nil {
		return err
	}

	if ph.RequiresSelectionAfterUpdate() {
		sel, err := s.selection(ctx, ex)
		if err != nil {
			return err
		}

		if resp, err = ph.Responder(ctx, sel); err != nil {
			return err
		}
	}

	return s.respond(ctx, ex, resp, false)
}

// options answers CORS preflight requests, the CORS headers themselves are added by the request.
func (s *Server) options(ex *exchange) error {
	hdr := ex.req.HTTP().Header
	if hdr.Get("Origin") == "" || hdr.Get("Access-Control-Request-Method") == "" {
		return osmhttp.NewErrorf(osmhttp.CodeMethodNotAllowed, "")
	}

	if err := ex.req.SetStatus(http.StatusOK); err != nil {
		return err
	}

	kv := []string{"Content-Type", "text/plain"}
	if allow := hdr.Get("Access-Control-Request-Headers"); allow != "" {
		kv = append(kv, "Access-Control-Allow-Headers", allow)
	}

	if err := addHeaders(ex.req, kv...); err != nil {
		return err
	}

	return ex.req.Finish()
}

// selection makes the selection for the request. Moderators may ask for redacted versions.
func (s *Server) selection(ctx context.Context, ex *exchange) (selection.Selection, error) {
	sel, err := s.sels.MakeSelection(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "make selection")
	}

	if hs, ok := sel.(selection.HistorySelection); ok && ex.identity.IsModerator() &&
		ex.req.HTTP().URL.Query().Get("show_redactions") == "true" {
		hs.SetRedactionsVisible(true)
	}

	return sel, nil
}

// respond negotiates the encoding and the media type and streams the document of resp. Without body only
// the headers are sent.
func (s *Server) respond(ctx context.Context, ex *exchange, resp responder.Responder, head bool) error {
	r := ex.req.HTTP()

	enc, err := osmhttp.ChooseEncoding(r.Header.Get("Accept-Encoding"))
	if err != nil {
		return err
	}

	mt, err := mime.ChooseBest(r.Header.Get("Accept"), resp, r.URL.Path)
	if err != nil {
		return err
	}

	if err := ex.req.SetStatus(http.StatusOK); err != nil {
		return err
	}

	kv := []string{"Content-Type", mt.String() + "; charset=utf-8"}
	if enc != osmhttp.EncodingIdentity {
		kv = append(kv, "Content-Encoding", enc.String())
	}
	if head {
		kv = append(kv, "Cache-Control", "no-cache")
	} else {
		kv = append(kv, "Cache-Control", "private, max-age=0, must-revalidate")
	}

	if err := addHeaders(ex.req, kv...); err != nil {
		return err
	}

	for key, values := range resp.ExtraHeaders() {
		for _, v := range values {
			if err := ex.req.AddSuccessHeader(key, v); err != nil {
				return err
			}
		}
	}

	if head {
		return ex.req.Finish()
	}

	buf, err := ex.req.Buffer()
	if err != nil {
		return err
	}

	out := enc.Wrap(buf)
	f, err := output.New(mt, out)
	if err != nil {
		return err
	}

	err = resp.Write(ctx, f, s.cfg.Generator, s.now())
	err = errors.CombineErrors(err, f.Flush())
	if cerr := out.Close(); cerr != nil {
		err = errors.CombineErrors(err, errors.Mark(errors.Wrap(cerr, "close output"), output.ErrWrite))
	}

	ex.bytes = buf.Written()
	if err != nil {
		return err
	}

	return ex.req.Finish()
}

// readPayload reads the request body, decompressed according to its Content-Encoding.
func (s *Server) readPayload(r *http.Request) ([]byte, error) {
	enc, ok := osmhttp.ParseContentEncoding(r.Header.Get("Content-Encoding"))
	if !ok {
		return nil, osmhttp.NewErrorf(osmhttp.CodeUnsupportedMediaType, "Supported Content-Encodings include only gzip and deflate")
	}

	raw, err := s.readLimited(r.Body)
	if err != nil {
		return nil, err
	}

	var rd io.ReadCloser
	switch enc {
	case osmhttp.EncodingGzip:
		rd, err = gzip.NewReader(bytes.NewReader(raw))
	case osmhttp.EncodingDeflate:
		rd, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}

	if err != nil {
		return nil, undecompressable(err)
	}
	defer rd.Close()

	payload, err := s.readLimited(rd)
	if err != nil && osmhttp.CodeOf(err) == osmhttp.CodeUnknown {
		return nil, undecompressable(err)
	}

	return payload, err
}

// readLimited reads all of rd, it fails when there is more than the configured maximum.
func (s *Server) readLimited(rd io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, s.cfg.MaxPayload+1))
	if err != nil {
		return nil, errors.Wrap(err, "read payload")
	} else if int64(len(data)) > s.cfg.MaxPayload {
		return nil, osmhttp.NewErrorf(osmhttp.CodeRequestEntityTooLarge, "Payload exceeds limit of %d bytes",
			s.cfg.MaxPayload)
	}

	return data, nil
}

func undecompressable(err error) error {
	return osmhttp.NewError(osmhttp.CodeBadRequest,
		errors.WithSecondaryError(errors.New("Payload cannot be decompressed according to Content-Encoding"), err))
}

// complete accounts the bytes sent to the client with the rate limiter, partial writes included, and
// records the request.
func (s *Server) complete(ctx context.Context, ex *exchange, start time.Time) {
	moderator := ex.identity.IsModerator()
	if ex.bytes > 0 {
		if err := s.limiter.Update(context.WithoutCancel(ctx), ex.clientKey, ex.bytes, moderator); err != nil {
			Log(ctx).Warn("failed to update rate limiter", zap.Error(err))
		}
	}

	elapsed := s.now().Sub(start)
	method, status := ex.req.HTTP().Method, ex.req.Status()
	s.metrics.observe(ex.route, method, status, ex.bytes, elapsed)

	Log(ctx).Info("request completed",
		zap.String("handler", ex.logName),
		zap.String("client", ex.clientKey),
		zap.String("method", method),
		zap.Int("status", status),
		zap.String("bytes", humanize.Bytes(uint64(ex.bytes))),
		zap.Duration("duration", elapsed))
}

// addrKey identifies an anonymous client by its address.
func addrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "addr:" + host
}

func addHeaders(req *osmhttp.Request, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if err := req.AddHeader(kv[i], kv[i+1]); err != nil {
			return err
		}
	}

	return nil
}
