// Package osmhttp provides the response workflow of the API: a guarded request that enforces the order in
// which status, headers and body are produced, errors that carry an HTTP status, content encodings and the
// output buffers that documents are streamed into.
//
// # Request Workflow
//
// A [Request] moves through the stages [StageNone], [StageHeaders], [StageBody] and [StageFinished]. The
// status may be set at most once and only before the body, headers may only be added before the body and
// nothing may follow [Request.Finish]. Violations are returned as errors so a handler can never emit a
// malformed response:
//
//	req := osmhttp.NewRequest(w, r)
//	if err := req.SetStatus(200); err != nil {
//	    return err
//	}
//	if err := req.AddHeader("Content-Type", "application/xml; charset=utf-8"); err != nil {
//	    return err
//	}
//	buf, err := req.Buffer()
//	if err != nil {
//	    return err
//	}
//	fmt.Fprint(buf, "<osm/>")
//	return req.Finish()
//
// Until the body is started [Request.Reset] discards status and headers so an error response can take
// their place. Headers added with [Request.AddSuccessHeader] are only sent with a 200 status.
//
// Every response carries the CORS headers of the API when the request has an Origin header.
//
// # Error Handling
//
// Errors with a specific HTTP status code are created with [NewError] or [NewErrorf]:
//
//	return osmhttp.NewErrorf(osmhttp.CodeNotFound, "Node %d not found", id)
//	return osmhttp.NewError(osmhttp.CodeBadRequest, err)
//
// [NewRetryableError] additionally carries the number of seconds a client should wait, which is sent as
// the Retry-After header. Any other error is answered with 500 Internal Server Error.
//
// Errors that can't be sent to the client anymore, because the body was already started, are reported to
// a [Logger].
//
// # Encoding
//
// [ChooseEncoding] picks gzip, deflate or identity from the Accept-Encoding header and [Encoding.Wrap]
// decorates an [OutputBuffer] with the matching compression. Buffers report the number of bytes that
// actually reached the connection, which is what the rate limiter charges.
package osmhttp
