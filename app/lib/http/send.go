package http

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var validencodings = map[string]bool{"gzip": true}

// Send writes a fixed length response and finishes the exchange. The body is
// gzipped when the request accepts it.
func (w *ResponseWriter) Send(res Response, body []byte) {
	if res.Headers == nil {
		res.Headers = make(map[string]string)
	}

	if len(body) > 0 && w.chooseEncoding() == "gzip" {
		zipped, err := gzipBytes(body)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to gzip body, sending identity")
		} else {
			w.logger.Debug().Int("length", len(body)).Int("zipped", len(zipped)).Msg("using gzip encoding")
			res.Headers[HeaderContentEncoding] = "gzip"
			body = zipped
		}
	}

	res.Headers[HeaderContentLength] = strconv.Itoa(len(body))

	w.WriteResponse(res)
	if len(body) > 0 {
		w.Write(body)
	}
	w.Finish()
}

func (w *ResponseWriter) SendStatus(code int) {
	w.Send(NewResponse(code), nil)
}

func (w *ResponseWriter) SendPlain(code int, body string) {
	w.logger.Debug().Str("body", body).Msg("sending plain body")

	res := NewResponse(code)
	res.Headers[HeaderContentType] = TextPlainContentType
	w.Send(res, []byte(body))
}

// SendStream copies r to the peer as a chunked body. A read error abandons
// the response and stops the connection, since the peer cannot tell a
// truncated chunked body from a complete one otherwise.
func (w *ResponseWriter) SendStream(res Response, r io.Reader) error {
	if res.Headers == nil {
		res.Headers = make(map[string]string)
	}
	res.Headers[HeaderTransferEncoding] = "chunked"
	w.WriteResponse(res)

	buf := make([]byte, 4096) // 4KB buffer
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.WriteChunk(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.logger.Error().Err(err).Msg("failed reading stream body")
			w.Finish()
			w.Stop()
			return fmt.Errorf("failed to stream body: %w", err)
		}
	}

	w.WriteEndChunk()
	return nil
}

func (w *ResponseWriter) chooseEncoding() string {
	accepted, ok := w.request.Header(HeaderAcceptEncoding)
	if !ok {
		return ""
	}

	for _, encoding := range strings.Split(accepted, ",") {
		encoding = strings.ToLower(strings.TrimSpace(encoding))
		if validencodings[encoding] {
			return encoding
		}
	}
	return ""
}

func gzipBytes(data []byte) ([]byte, error) {
	var compressed bytes.Buffer

	gzipWriter := gzip.NewWriter(&compressed)
	if _, err := gzipWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return compressed.Bytes(), nil
}
