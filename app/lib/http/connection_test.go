package http

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sains1/httpframer/app/lib/metrics"
	"github.com/sains1/httpframer/app/lib/transport"
	"github.com/sains1/httpframer/app/lib/transport/dummy"
)

type recorder struct {
	mu      sync.Mutex
	events  []Event
	onEvent func(Event)
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) requests() []RequestReceived {
	var out []RequestReceived
	for _, ev := range r.all() {
		if rr, ok := ev.(RequestReceived); ok {
			out = append(out, rr)
		}
	}
	return out
}

func (r *recorder) responsesSent() []ResponseSent {
	var out []ResponseSent
	for _, ev := range r.all() {
		if rs, ok := ev.(ResponseSent); ok {
			out = append(out, rs)
		}
	}
	return out
}

func newTestConnection(t *testing.T, tc *dummy.Conn, options Options, onEvent func(Event)) (*Connection, *recorder) {
	t.Helper()

	rec := &recorder{onEvent: onEvent}
	conn := NewConnection(tc, options, rec.record, zerolog.Nop())
	tc.Start(conn)
	return conn, rec
}

func TestConnectionDeliversEachRequestOnce(t *testing.T) {
	// arrange
	tc := dummy.NewAutoConn()
	_, rec := newTestConnection(t, tc, Options{Pipelining: true}, nil)
	before := testutil.ToFloat64(metrics.RequestsFramed)

	// act
	tc.Feed("GET /x HTTP/1.1\r\nHost: a\r\nContent-L")
	tc.Feed("ength: 5\r\n\r\nhello")

	// assert
	reqs := rec.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "/x", reqs[0].Request.Path)
	require.Equal(t, "hello", string(reqs[0].Request.Body))
	require.NotNil(t, reqs[0].Writer)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsFramed)-before)
}

func TestConnectionRearmsReads(t *testing.T) {
	tc := dummy.NewAutoConn()
	newTestConnection(t, tc, Options{}, nil)
	require.Equal(t, 1, tc.Reads())

	tc.Feed("GET / HT")
	tc.Feed("TP/1.1\r\n")
	require.Equal(t, 3, tc.Reads())
}

func TestConnectionPipeliningDispatchesImmediately(t *testing.T) {
	tc := dummy.NewAutoConn()
	_, rec := newTestConnection(t, tc, Options{Pipelining: true}, nil)

	tc.Feed("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

	reqs := rec.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "/a", reqs[0].Request.Path)
	require.Equal(t, "/b", reqs[1].Request.Path)
}

func TestConnectionGatesUntilFinish(t *testing.T) {
	// arrange
	tc := dummy.NewAutoConn()
	_, rec := newTestConnection(t, tc, Options{}, nil)

	// act
	tc.Feed("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

	// assert
	reqs := rec.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "/a", reqs[0].Request.Path)

	reqs[0].Writer.SendStatus(StatusOK)

	reqs = rec.requests()
	require.Len(t, reqs, 2)
	require.Equal(t, "/b", reqs[1].Request.Path)

	// a repeated Finish must not release anything else
	reqs[0].Writer.Finish()
	require.Len(t, rec.requests(), 2)

	reqs[1].Writer.SendStatus(StatusOK)
	tc.Feed("GET /c HTTP/1.1\r\n\r\n")
	require.Len(t, rec.requests(), 3)
}

func TestConnectionGatedHandlersAnsweringInline(t *testing.T) {
	tc := dummy.NewAutoConn()
	_, rec := newTestConnection(t, tc, Options{}, func(ev Event) {
		if rr, ok := ev.(RequestReceived); ok {
			rr.Writer.SendPlain(StatusOK, rr.Request.Path)
		}
	})

	tc.Feed("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\nGET /c HTTP/1.1\r\n\r\n")

	require.Len(t, rec.requests(), 3)
	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Type: text/plain\r\n\r\n/a"+
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Type: text/plain\r\n\r\n/b"+
			"HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Type: text/plain\r\n\r\n/c",
		tc.Written())
}

func TestConnectionRejectsOversizedHeader(t *testing.T) {
	// arrange
	tc := dummy.NewAutoConn()
	conn, rec := newTestConnection(t, tc, Options{Limits: Limits{MaxHeaderBytes: 32}}, nil)
	before := testutil.ToFloat64(metrics.RequestsRejected.WithLabelValues("header"))

	// act
	tc.Feed("GET / HTTP/1.1\r\nX-Padding: 0123456789abcdefghijklmnop")
	tc.Feed("GET / HTTP/1.1\r\n\r\n")

	// assert
	require.Equal(t, "HTTP/1.1 431 Request Header Fields Too Large\r\nConnection: close\r\nContent-Length: 0\r\n\r\n", tc.Written())
	require.True(t, tc.Stopped())
	require.Empty(t, rec.requests())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsRejected.WithLabelValues("header"))-before)

	select {
	case <-conn.Done():
	default:
		t.Fatal("expected connection to be closed")
	}
}

func TestConnectionRejectsOversizedBody(t *testing.T) {
	tc := dummy.NewAutoConn()
	newTestConnection(t, tc, Options{Limits: Limits{MaxBodyBytes: 3}}, nil)

	tc.Feed("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd")

	require.Equal(t, "HTTP/1.1 413 Request Entity Too Large\r\nConnection: close\r\nContent-Length: 0\r\n\r\n", tc.Written())
	require.True(t, tc.Stopped())
}

func TestConnectionClosedOnce(t *testing.T) {
	tc := dummy.NewConn()
	conn, rec := newTestConnection(t, tc, Options{}, nil)
	boom := errors.New("reset by peer")

	tc.Close(boom)
	conn.Closed(nil)

	var closed []Closed
	for _, ev := range rec.all() {
		if c, ok := ev.(Closed); ok {
			closed = append(closed, c)
		}
	}
	require.Len(t, closed, 1)
	require.ErrorIs(t, closed[0].Err, boom)
	require.Same(t, conn, closed[0].Conn)
}

func TestConnectionMatchesCompletionsByTag(t *testing.T) {
	// arrange
	tc := dummy.NewConn()
	_, rec := newTestConnection(t, tc, Options{}, nil)
	tc.Feed("GET / HTTP/1.1\r\n\r\n")
	w := rec.requests()[0].Writer

	header := w.WriteResponse(NewResponse(StatusOK))
	first := w.Write([]byte("one"))
	second := w.Write([]byte("two"))
	require.NotEqual(t, first, second)

	// act
	tc.Complete(second)
	tc.Fail(first, transport.ErrClosed)
	tc.Complete(header)

	// assert
	events := rec.all()
	completed, ok := events[len(events)-3].(WriteCompleted)
	require.True(t, ok)
	require.Equal(t, second, completed.Tag)

	failed, ok := events[len(events)-2].(WriteFailed)
	require.True(t, ok)
	require.Equal(t, first, failed.Tag)
	require.ErrorIs(t, failed.Err, transport.ErrClosed)

	sent, ok := events[len(events)-1].(ResponseSent)
	require.True(t, ok)
	require.True(t, sent.Success)
}

func TestConnectionRejectDuringActiveResponse(t *testing.T) {
	tests := []struct {
		name    string
		options Options
	}{
		{name: "gated", options: Options{Limits: Limits{MaxHeaderBytes: 32}}},
		{name: "pipelining", options: Options{Limits: Limits{MaxHeaderBytes: 32}, Pipelining: true}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// arrange
			tc := dummy.NewAutoConn()
			_, rec := newTestConnection(t, tc, test.options, nil)
			tc.Feed("GET /events HTTP/1.1\r\n\r\n")
			w := rec.requests()[0].Writer
			w.StartEvents(NewResponse(StatusOK))
			w.WriteEvent("tick", "1")
			before := tc.Written()

			// act
			tc.Feed("GET / HTTP/1.1\r\nX-Padding: 0123456789abcdefghijklmnop")

			// assert
			require.Equal(t, before, tc.Written())
			require.NotContains(t, tc.Written(), "431")
			require.True(t, tc.Stopped())
		})
	}
}

func TestConnectionRejectAfterFinishedResponse(t *testing.T) {
	tc := dummy.NewAutoConn()
	_, rec := newTestConnection(t, tc, Options{Limits: Limits{MaxBodyBytes: 3}}, nil)

	tc.Feed("GET /a HTTP/1.1\r\n\r\n")
	rec.requests()[0].Writer.SendStatus(StatusOK)
	tc.Feed("POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd")

	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"+
			"HTTP/1.1 413 Request Entity Too Large\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		tc.Written())
	require.True(t, tc.Stopped())
}
