package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrHeaderTooLarge = errors.New("request header too large")
	ErrBodyTooLarge   = errors.New("request body too large")
)

// Phase is either AwaitingHeaders or AwaitingBody.
type Phase interface {
	phase()
}

type AwaitingHeaders struct{}

// AwaitingBody holds a request whose header block has been parsed while its
// Expected body bytes are still arriving.
type AwaitingBody struct {
	Expected int
	Partial  *Request
}

func (AwaitingHeaders) phase() {}
func (AwaitingBody) phase()    {}

// ParserState is the whole framing state of one connection. The zero value
// is awaiting headers with an empty buffer.
type ParserState struct {
	Phase  Phase
	Buffer []byte
}

// Limits bounds what a peer may buffer, zero fields are unlimited.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

// Feed appends data to the state's buffer and frames as many requests as it
// now holds. The returned state replaces the one passed in, which must not be
// used again since both may share a buffer.
//
// Requests are returned in wire order. On a limit error the requests framed
// before the offending one are still returned.
func Feed(state ParserState, data []byte, limits Limits) (ParserState, []*Request, error) {
	buf := append(state.Buffer, data...)

	// off marks the first unframed byte, the buffer is compacted once on
	// return so a burst of small requests stays linear.
	off := 0
	var delivered []*Request
	for {
		pending := buf[off:]

		switch phase := state.Phase.(type) {
		case AwaitingBody:
			if len(pending) < phase.Expected {
				state.Buffer = compact(buf, off)
				return state, delivered, nil
			}

			req := phase.Partial
			req.Body = bytes.Clone(pending[:phase.Expected])
			off += phase.Expected
			state.Phase = AwaitingHeaders{}
			delivered = append(delivered, req)

		default:
			end := bytes.Index(pending, headerTerminator)
			if end < 0 {
				state.Buffer = compact(buf, off)
				if limits.MaxHeaderBytes > 0 && len(pending) > limits.MaxHeaderBytes {
					return state, delivered, ErrHeaderTooLarge
				}
				return state, delivered, nil
			}

			size := end + len(headerTerminator)
			if limits.MaxHeaderBytes > 0 && size > limits.MaxHeaderBytes {
				state.Buffer = compact(buf, off)
				return state, delivered, ErrHeaderTooLarge
			}

			req, expected := parseHeaders(pending[:size])
			off += size

			if limits.MaxBodyBytes > 0 && expected > limits.MaxBodyBytes {
				state.Buffer = compact(buf, off)
				return state, delivered, ErrBodyTooLarge
			}

			if expected == 0 {
				state.Phase = AwaitingHeaders{}
				delivered = append(delivered, req)
				continue
			}

			state.Phase = AwaitingBody{Expected: expected, Partial: req}
		}
	}
}

// maxRetainedBuffer caps the capacity a connection keeps between reads once
// a large body has been framed out of it.
const maxRetainedBuffer = 64 << 10

// compact drops the first off bytes. The remainder moves to the front, or to
// a fresh allocation when the backing array has grown past
// maxRetainedBuffer.
func compact(buf []byte, off int) []byte {
	if off == 0 {
		return buf
	}

	rest := buf[off:]
	if cap(buf) > maxRetainedBuffer {
		if len(rest) == 0 {
			return nil
		}
		return bytes.Clone(rest)
	}

	n := copy(buf, rest)
	return buf[:n]
}

// parseHeaders turns a header block, terminator included, into a request and
// the body length announced by Content-Length. It never fails: a malformed
// request line falls back to GET / and unusable header lines are skipped.
func parseHeaders(block []byte) (*Request, int) {
	lines := strings.Split(string(bytes.TrimSuffix(block, headerTerminator)), string(crlf))

	req := &Request{
		Method:  DefaultMethod,
		Path:    DefaultPath,
		Version: Http1Dot1Version,
		Headers: make(map[string]string),
	}

	tokens := strings.Split(lines[0], " ")
	if tokens[0] != "" {
		req.Method = tokens[0]
	}
	if len(tokens) > 1 && tokens[1] != "" {
		req.Path = tokens[1]
	}
	if len(tokens) > 2 && tokens[2] != "" {
		req.Version = tokens[2]
	}

	expected := 0
	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		req.Headers[key] = value

		if strings.EqualFold(key, HeaderContentLength) {
			expected = 0
			if n, err := strconv.Atoi(value); err == nil {
				expected = max(n, 0)
			}
		}
	}

	return req, expected
}

// Framer owns the ParserState of a single connection.
type Framer struct {
	state  ParserState
	limits Limits
}

func NewFramer(limits Limits) *Framer {
	return &Framer{
		state:  ParserState{Phase: AwaitingHeaders{}},
		limits: limits,
	}
}

func (f *Framer) Feed(data []byte) ([]*Request, error) {
	var (
		reqs []*Request
		err  error
	)
	f.state, reqs, err = Feed(f.state, data, f.limits)
	return reqs, err
}

// Reset discards buffered bytes and any partially framed request.
func (f *Framer) Reset() {
	f.state = ParserState{Phase: AwaitingHeaders{}}
}

func (f *Framer) State() ParserState {
	return f.state
}

// Buffered reports how many received bytes have not been framed yet.
func (f *Framer) Buffered() int {
	return len(f.state.Buffer)
}
