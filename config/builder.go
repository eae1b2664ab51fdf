package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/typester/riverql"
)

// BuildOptions converts parsed configuration into [riverql.Option] values.
//
// stdin is used when a stream source reads from "-". The logger is not part
// of the file; callers append [riverql.WithLogger] themselves.
func BuildOptions(cfg *Config, stdin io.Reader) ([]riverql.Option, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	listen := cfg.ParsedListen()
	if listen.Network == "" {
		// Config built in code rather than by Parse
		l, err := ParseListen(cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("listen: %w", err)
		}
		listen = l
	}

	opts := []riverql.Option{
		riverql.WithListen(listen.Network, listen.Address),
	}

	if cfg.BusCapacity != 0 {
		opts = append(opts, riverql.WithBusCapacity(cfg.BusCapacity))
	}

	if cfg.WriteTimeout != 0 {
		opts = append(opts, riverql.WithWriteTimeout(cfg.WriteTimeout.Duration()))
	}

	src, err := buildSource(cfg.Source, stdin)
	if err != nil {
		return nil, err
	}
	return append(opts, src), nil
}

// buildSource converts a SourceConfig to the matching source option.
func buildSource(sc SourceConfig, stdin io.Reader) (riverql.Option, error) {
	switch sc.Type {
	case SourceStream, "":
		if sc.Path == "" || sc.Path == Stdin {
			if stdin == nil {
				return nil, errors.New("source (stream): stdin is not available")
			}
			return riverql.WithStreamReader(stdin), nil
		}
		return riverql.WithStreamFile(sc.Path), nil
	case SourceReplay:
		return riverql.WithReplayFile(sc.Path, sc.Interval.Duration()), nil
	default:
		return nil, fmt.Errorf("source: unknown type %q", sc.Type)
	}
}
