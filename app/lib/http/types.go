package http

import (
	"strings"

	"github.com/rs/zerolog"
)

type Request struct {
	Method    string
	Path      string
	Version   string
	Headers   map[string]string
	Body      []byte // nil when the request carried no Content-Length
	RouteVars map[string]string
	Logger    zerolog.Logger
}

// Header looks name up case-insensitively. Headers keeps keys exactly as
// received, so handlers should prefer this over indexing the map.
func (r *Request) Header(name string) (string, bool) {
	if v, ok := r.Headers[name]; ok {
		return v, true
	}

	var (
		value string
		found bool
	)
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			value, found = v, true
		}
	}
	return value, found
}

type Response struct {
	StatusCode    int
	StatusMessage string
	Headers       map[string]string
}

func NewResponse(code int) Response {
	return Response{StatusCode: code, Headers: make(map[string]string)}
}

func (r Response) statusLine() (int, string) {
	code := r.StatusCode
	if code == 0 {
		code = StatusOK
	}

	msg := r.StatusMessage
	if msg == "" {
		msg = StatusText(code)
	}
	return code, msg
}
