package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	TransportNet  = "net"
	TransportGnet = "gnet"
)

type ServerConfig struct {
	Port           int
	Directory      string
	Transport      string
	Debug          bool
	Pipelining     bool
	Multicore      bool
	MaxHeaderBytes int
	MaxBodyBytes   int
	MaxConns       int
	IdleTimeout    time.Duration
	MetricsAddr    string
}

func parseArgs(args []string) (ServerConfig, error) {
	var conf ServerConfig

	fs := flag.NewFlagSet("httpframer", flag.ContinueOnError)
	fs.IntVar(&conf.Port, "port", 4221, "port to listen on")
	fs.StringVar(&conf.Directory, "directory", "wwwroot", "Path to the files directory")
	fs.StringVar(&conf.Transport, "transport", TransportNet, "connection transport, net or gnet")
	fs.BoolVar(&conf.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&conf.Pipelining, "pipelining", false, "dispatch requests before the previous response has finished")
	fs.BoolVar(&conf.Multicore, "multicore", true, "run one gnet event loop per core")
	fs.IntVar(&conf.MaxHeaderBytes, "max-header-bytes", 1<<20, "largest accepted header block, 0 for unlimited")
	fs.IntVar(&conf.MaxBodyBytes, "max-body-bytes", 32<<20, "largest accepted request body, 0 for unlimited")
	fs.IntVar(&conf.MaxConns, "max-conns", 0, "maximum concurrent connections on the net transport, 0 for unlimited")
	fs.DurationVar(&conf.IdleTimeout, "idle-timeout", 0, "drop connections silent for this long, 0 disables")
	fs.StringVar(&conf.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	return conf, conf.Validate()
}

func (c ServerConfig) Validate() error {
	var result *multierror.Error

	if c.Port < 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.Transport != TransportNet && c.Transport != TransportGnet {
		result = multierror.Append(result, fmt.Errorf("unknown transport %q, expected %s or %s", c.Transport, TransportNet, TransportGnet))
	}
	if c.MaxHeaderBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("max-header-bytes must not be negative"))
	}
	if c.MaxBodyBytes < 0 {
		result = multierror.Append(result, fmt.Errorf("max-body-bytes must not be negative"))
	}
	if c.MaxConns < 0 {
		result = multierror.Append(result, fmt.Errorf("max-conns must not be negative"))
	}
	if c.IdleTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("idle-timeout must not be negative"))
	}

	return result.ErrorOrNil()
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}
