package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sains1/httpframer/app/lib/broker"
	"github.com/sains1/httpframer/app/lib/http"
	"github.com/sains1/httpframer/app/lib/metrics"
	"github.com/sains1/httpframer/app/lib/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.With().Str("component", "main").Logger()

	conf, err := parseArgs(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid arguments")
	}

	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger.Debug().Interface("config", conf).Msg("Parsed config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		logger.Fatal().Err(err).Msg("Server exited with error")
	}

	logger.Info().Msg("Server stopped")
}

func run(ctx context.Context, conf ServerConfig) error {
	events := broker.NewBroker(log.With().Str("component", "broker").Logger())
	events.Start(ctx)

	options := http.Options{
		Limits: http.Limits{
			MaxHeaderBytes: conf.MaxHeaderBytes,
			MaxBodyBytes:   conf.MaxBodyBytes,
		},
		Pipelining: conf.Pipelining,
	}
	pipeline := http.NewHttpPipeline(routes(conf.Directory, events), options, log.With().Str("component", "pipeline").Logger())

	server := newTransport(conf)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, pipeline.Accept)
	})

	if conf.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics.MustRegister(reg)
		g.Go(func() error {
			return serveMetrics(gctx, conf.MetricsAddr, reg)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newTransport(conf ServerConfig) transport.Server {
	logger := log.With().Str("component", "transport").Str("transport", conf.Transport).Logger()

	if conf.Transport == TransportGnet {
		return transport.NewGnetServer(transport.GnetServerConfig{
			Addr:        conf.Addr(),
			Multicore:   conf.Multicore,
			IdleTimeout: conf.IdleTimeout,
		}, logger)
	}

	return transport.NewNetServer(transport.NetServerConfig{
		Addr:        conf.Addr(),
		MaxConns:    conf.MaxConns,
		IdleTimeout: conf.IdleTimeout,
	}, logger)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	logger := log.With().Str("component", "metrics").Logger()

	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &nethttp.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("address", addr).Msg("Serving metrics")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := <-errc; err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func routes(filedir string, events *broker.Broker) []http.RouteHandler {
	// Root Handler
	root := http.MustRouteHandler("GET", "/", func(w *http.ResponseWriter, req *http.Request) {
		req.Logger.Info().Msg("handling root command")
		w.SendStatus(http.StatusOK)
	})

	// Echo handler
	echo := http.MustRouteHandler("GET", "/echo/{command}", func(w *http.ResponseWriter, req *http.Request) {
		command := req.RouteVars["command"]
		req.Logger.Info().Str("command", command).Msg("handling echo command")
		w.SendPlain(http.StatusOK, command)
	})

	// User-Agent handler
	uagent := http.MustRouteHandler("GET", "/user-agent", func(w *http.ResponseWriter, req *http.Request) {
		uagentheader, exists := req.Header(http.HeaderUserAgent)
		req.Logger.Info().Str("uagent", uagentheader).Msg("handling uagent command")

		if !exists {
			w.SendPlain(http.StatusInternalServerError, "expected user-agent header to be sent")
			return
		}
		w.SendPlain(http.StatusOK, uagentheader)
	})

	// File read handler
	fileread := http.MustRouteHandler("GET", "/files/{fileName}", func(w *http.ResponseWriter, req *http.Request) {
		filename := req.RouteVars["fileName"]
		req.Logger.Info().Str("filename", filename).Str("dir", filedir).Msg("handling file command")

		f, err := os.Open(path.Join(filedir, path.Base(filename)))
		if err != nil {
			req.Logger.Error().Err(err).Msg("error reading file")
			if os.IsNotExist(err) {
				w.SendStatus(http.StatusNotFound)
			} else {
				w.SendStatus(http.StatusInternalServerError)
			}
			return
		}
		defer f.Close()

		res := http.NewResponse(http.StatusOK)
		res.Headers[http.HeaderContentType] = http.OctetStreamContentType
		if err := w.SendStream(res, f); err != nil {
			req.Logger.Error().Err(err).Msg("error streaming file")
		}
	})

	// File write handler
	filewrite := http.MustRouteHandler("POST", "/files/{fileName}", func(w *http.ResponseWriter, req *http.Request) {
		filename := req.RouteVars["fileName"]
		req.Logger.Info().Str("filename", filename).Str("dir", filedir).Int("length", len(req.Body)).Msg("handling write file command")

		if err := os.WriteFile(path.Join(filedir, path.Base(filename)), req.Body, 0o644); err != nil {
			req.Logger.Error().Err(err).Str("filename", filename).Msg("unable to write content to file")
			w.SendStatus(http.StatusInternalServerError)
			return
		}

		w.SendStatus(http.StatusCreated)
	})

	// Event stream handler
	subscribe := http.MustRouteHandler("GET", "/events", func(w *http.ResponseWriter, req *http.Request) {
		id, messages := events.Subscribe(16)
		req.Logger.Info().Str("subscriber_id", id.String()).Msg("handling events subscription")

		w.StartEvents(http.NewResponse(http.StatusOK))
		w.WriteEvent("subscribed", id.String())

		go func() {
			defer events.Unsubscribe(id)
			for {
				select {
				case msg, ok := <-messages:
					if !ok {
						w.EndEvents()
						return
					}
					w.WriteEvent(msg.Event, msg.Data)
				case <-w.Done():
					return
				}
			}
		}()
	})

	// Publish handler
	publish := http.MustRouteHandler("POST", "/publish/{event}", func(w *http.ResponseWriter, req *http.Request) {
		event := req.RouteVars["event"]
		req.Logger.Info().Str("event", event).Msg("handling publish command")

		if !events.Publish(broker.Message{Event: event, Data: string(req.Body)}) {
			w.SendPlain(http.StatusInternalServerError, "broker stopped")
			return
		}
		w.SendStatus(http.StatusCreated)
	})

	return []http.RouteHandler{root, echo, uagent, fileread, filewrite, subscribe, publish}
}
