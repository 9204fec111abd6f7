package http

var (
	StatusOK                          = 200
	StatusCreated                     = 201
	StatusNotFound                    = 404
	StatusMethodNotAllowed            = 405
	StatusRequestEntityTooLarge       = 413
	StatusRequestHeaderFieldsTooLarge = 431
	StatusInternalServerError         = 500
)

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	400: "Bad Request",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Request Entity Too Large",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
}

// StatusText returns the reason phrase for code, "OK" when unknown.
func StatusText(code int) string {
	if text, ok := statusText[code]; ok {
		return text
	}
	return "OK"
}

var (
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderAcceptEncoding   = "Accept-Encoding"
	HeaderCacheControl     = "Cache-Control"
	HeaderConnection       = "Connection"
	HeaderUserAgent        = "User-Agent"
)

var (
	TextPlainContentType   = "text/plain"
	JsonContentType        = "application/json"
	OctetStreamContentType = "application/octet-stream"
	EventStreamContentType = "text/event-stream"
)

var (
	Http1Dot1Version = "HTTP/1.1"
	DefaultMethod    = "GET"
	DefaultPath      = "/"
)

var (
	crlf             = []byte("\r\n")
	headerTerminator = []byte("\r\n\r\n")
)
