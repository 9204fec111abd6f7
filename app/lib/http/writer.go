package http

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"

	"github.com/sains1/httpframer/app/lib/transport"
)

// ResponseWriter answers a single request. It is safe for use from several
// goroutines, for instance an SSE handler publishing from a subscription
// loop.
type ResponseWriter struct {
	conn    *Connection
	request *Request
	logger  zerolog.Logger

	// issueMu keeps the status line ahead of every body write on the wire.
	// It is held across transport.Write, so completion callbacks must not
	// write to the same response synchronously.
	issueMu sync.Mutex

	mu           sync.Mutex
	headerIssued bool
	responseSent bool
	finished     bool
}

func newResponseWriter(conn *Connection, req *Request) *ResponseWriter {
	return &ResponseWriter{
		conn:    conn,
		request: req,
		logger:  req.Logger,
	}
}

func (w *ResponseWriter) Request() *Request {
	return w.request
}

// WriteResponse issues the status line and headers as one tagged write. Only
// the first call per request does anything, later ones return the zero tag.
func (w *ResponseWriter) WriteResponse(res Response) transport.Tag {
	w.issueMu.Lock()
	defer w.issueMu.Unlock()

	w.mu.Lock()
	if w.headerIssued {
		w.mu.Unlock()
		w.logger.Debug().Msg("status line already written, ignoring")
		return transport.Tag{}
	}
	tag := transport.NewTag()
	w.headerIssued = true
	w.mu.Unlock()

	code, _ := res.statusLine()
	w.logger.Debug().Int("status", code).Str("tag", tag.String()).Msg("sending response")

	w.conn.expectHeader(tag, w)
	w.conn.transport.Write(serializeResponse(res, w.logger), tag)
	return tag
}

// Write forwards raw body bytes. Bytes written before WriteResponse are
// dropped, so a body can never precede its status line.
func (w *ResponseWriter) Write(body []byte) transport.Tag {
	w.issueMu.Lock()
	defer w.issueMu.Unlock()

	if !w.HeaderWritten() {
		w.logger.Debug().Int("bytes", len(body)).Msg("body written before status line, ignoring")
		return transport.Tag{}
	}

	tag := transport.NewTag()
	w.conn.transport.Write(body, tag)
	return tag
}

// WriteChunk frames chunk with the chunked transfer coding.
func (w *ResponseWriter) WriteChunk(chunk []byte) transport.Tag {
	frame := make([]byte, 0, len(chunk)+12)
	frame = strconv.AppendInt(frame, int64(len(chunk)), 16)
	frame = append(frame, crlf...)
	frame = append(frame, chunk...)
	frame = append(frame, crlf...)

	return w.Write(frame)
}

// WriteEndChunk writes the zero length terminator chunk and finishes the
// exchange.
func (w *ResponseWriter) WriteEndChunk() transport.Tag {
	tag := w.WriteChunk(nil)
	w.Finish()
	return tag
}

// Finish marks the response as complete. When pipelining is disabled the
// next framed request on the connection is only dispatched after this.
func (w *ResponseWriter) Finish() {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return
	}
	w.finished = true
	w.mu.Unlock()

	w.conn.finish(w)
}

// Done is closed when the underlying connection goes away.
func (w *ResponseWriter) Done() <-chan struct{} {
	return w.conn.Done()
}

func (w *ResponseWriter) Stop() {
	w.conn.Stop()
}

func (w *ResponseWriter) ForceStop() {
	w.conn.ForceStop()
}

// HeaderWritten reports whether the status line has been issued.
func (w *ResponseWriter) HeaderWritten() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.headerIssued
}

// ResponseSent reports whether the transport has confirmed the status line
// write, successfully or not.
func (w *ResponseWriter) ResponseSent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.responseSent
}

func (w *ResponseWriter) confirm() {
	w.mu.Lock()
	w.responseSent = true
	w.mu.Unlock()
}

func serializeResponse(res Response, logger zerolog.Logger) []byte {
	var builder strings.Builder

	// Status line
	code, msg := res.statusLine()
	builder.WriteString(Http1Dot1Version)
	builder.WriteString(" ")
	builder.WriteString(strconv.Itoa(code))
	builder.WriteString(" ")
	builder.WriteString(msg)
	builder.WriteString("\r\n")

	// Headers
	keys := make([]string, 0, len(res.Headers))
	for k := range res.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := res.Headers[k]
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			logger.Warn().Str("header", k).Msg("dropping invalid response header")
			continue
		}
		writeHeader(&builder, k, v)
	}

	builder.WriteString("\r\n")
	return []byte(builder.String())
}

func writeHeader(builder *strings.Builder, key string, val string) {
	builder.WriteString(key)
	builder.WriteString(": ")
	builder.WriteString(val)
	builder.WriteString("\r\n")
}
