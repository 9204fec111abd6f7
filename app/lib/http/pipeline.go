package http

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/sains1/httpframer/app/lib/transport"
)

// HttpPipeline routes framed requests to handlers. Its HandleEvent method is
// the EventFunc given to every connection it accepts.
type HttpPipeline struct {
	handlers []RouteHandler
	options  Options
	logger   zerolog.Logger
}

func NewHttpPipeline(handlers []RouteHandler, options Options, logger zerolog.Logger) *HttpPipeline {
	return &HttpPipeline{
		handlers: handlers,
		options:  options,
		logger:   logger,
	}
}

var NotFoundHandlerFunc HandlerFunction = func(w *ResponseWriter, req *Request) {
	req.Logger.Info().Msg("404 route not found")
	w.SendStatus(StatusNotFound)
}

// Accept is a transport.AcceptFunc.
func (p *HttpPipeline) Accept(t transport.Conn) {
	conn := NewConnection(t, p.options, p.HandleEvent, p.logger)
	t.Start(conn)
}

func (p *HttpPipeline) HandleEvent(ev Event) {
	switch ev := ev.(type) {
	case RequestReceived:
		p.handle(ev.Writer, ev.Request)
	case ResponseSent:
		if !ev.Success {
			ev.Request.Logger.Warn().Err(ev.Err).Msg("failed to send response")
			return
		}
		ev.Request.Logger.Debug().Msg("response sent")
	case WriteCompleted:
		p.logger.Trace().Str("tag", ev.Tag.String()).Msg("write completed")
	case WriteFailed:
		logger := ev.Conn.Logger()
		logger.Debug().Err(ev.Err).Str("tag", ev.Tag.String()).Msg("write failed")
	case Closed:
		logger := ev.Conn.Logger()
		if ev.Err != nil {
			logger.Info().Err(ev.Err).Msg("connection closed with error")
			return
		}
		logger.Debug().Msg("connection closed")
	}
}

func (p *HttpPipeline) handle(w *ResponseWriter, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			req.Logger.Error().Interface("panic", r).Msg("handler panicked")
			if w.HeaderWritten() {
				w.ForceStop()
				return
			}
			w.SendStatus(StatusInternalServerError)
		}
	}()

	p.logger.Debug().Str("method", req.Method).Str("path", req.Path).Msg("routing request")
	p.route(req)(w, req)
}

func (p *HttpPipeline) route(req *Request) HandlerFunction {
	for _, h := range p.handlers {
		if !strings.EqualFold(req.Method, h.method) {
			continue
		}

		ok, vars := match(req.Path, h.segments)
		if !ok {
			continue
		}

		p.logger.Debug().Msgf("found match! %s %s", h.method, h.pattern)
		req.RouteVars = vars
		return h.handle
	}

	return NotFoundHandlerFunc
}
