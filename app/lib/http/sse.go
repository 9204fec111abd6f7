package http

import (
	"strings"

	"github.com/sains1/httpframer/app/lib/transport"
)

// StartEvents opens a server-sent events stream carried over chunked
// transfer coding.
func (w *ResponseWriter) StartEvents(res Response) transport.Tag {
	if res.Headers == nil {
		res.Headers = make(map[string]string)
	}
	res.Headers[HeaderContentType] = EventStreamContentType
	res.Headers[HeaderCacheControl] = "no-cache"
	res.Headers[HeaderTransferEncoding] = "chunked"

	return w.WriteResponse(res)
}

// WriteEvent sends one event as its own chunk. Multi-line data is split over
// several data fields. A name containing a line break is refused with the
// zero tag since it would inject fields of its own.
func (w *ResponseWriter) WriteEvent(name string, data string) transport.Tag {
	if strings.ContainsAny(name, "\r\n") {
		w.logger.Warn().Str("event", name).Msg("event name contains a line break, dropping event")
		return transport.Tag{}
	}

	// CR and CRLF end a line in an event stream as well
	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")

	var b strings.Builder
	if name != "" {
		b.WriteString("event: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return w.WriteChunk([]byte(b.String()))
}

func (w *ResponseWriter) EndEvents() transport.Tag {
	return w.WriteEndChunk()
}
