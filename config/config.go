// Package config reads audioseed settings from the environment, optionally
// seeded from a .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix for environment variable names, so LOG_LEVEL becomes AUDIOSEED_LOG_LEVEL.
const envprefix = "AUDIOSEED"

// Configuration via environment variables with github.com/kelseyhightower/envconfig.
type Configuration struct {

	// LOG_LEVEL and LOG_FORMAT control zerolog output on stderr.
	LogLevel  string `split_words:"true" default:"info" desc:"Log level (trace, debug, info, warn, error)"`
	LogFormat string `split_words:"true" default:"console" desc:"Log format (console or json)"`

	// CAPTURE is a raw PCM recording to replay instead of reading stdin.
	Capture string `desc:"Raw PCM capture file (.gz, .sz, .lz4 are decompressed)"`

	// SAMPLE_FORMAT is the encoding of stdin or the capture file.
	SampleFormat string `split_words:"true" default:"f32le" desc:"Sample format (f32le, s16le, s32le, u16le, u8)"`

	// CHUNK_SAMPLES is the number of samples mixed into each seed.
	ChunkSamples int `split_words:"true" default:"1024" desc:"Samples per chunk"`

	// TICK is the reseed interval used when no audio is available; zero disables it.
	Tick time.Duration `default:"250ms" desc:"Reseed interval without audio, 0 to disable"`

	// POLICY is the default sentinel policy for draw.
	Policy string `default:"probabilistic" desc:"Sentinel policy (strict or probabilistic)"`

	// METRICS_LISTEN exposes Prometheus metrics via /metrics when set.
	MetricsListen string `split_words:"true" desc:"Listen address for the Prometheus exporter"`
}

// Load reads an optional .env file into the environment and parses the
// configuration from it.
func Load() (Configuration, error) {
	var conf Configuration
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return conf, fmt.Errorf("load dotenv: %w", err)
	}
	if err := envconfig.Process(envprefix, &conf); err != nil {
		return conf, fmt.Errorf("parse config: %w", err)
	}
	if conf.ChunkSamples < 1 {
		return conf, fmt.Errorf("parse config: %s_CHUNK_SAMPLES must be positive, got %d", envprefix, conf.ChunkSamples)
	}
	return conf, nil
}

// see https://github.com/kelseyhightower/envconfig/blob/v1.4.0/usage.go#L31
const usageHelpFormat = `This application is configured with the following environment variables:
KEY	DESCRIPTION	DEFAULT
{{range .}}{{usage_key .}}	{{usage_description .}}	{{usage_default .}}
{{end}}`

// Usage prints the environment variables understood by Load.
func Usage(w io.Writer) error {
	tabs := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(envprefix, &Configuration{}, tabs, usageHelpFormat); err != nil {
		return err
	}
	return tabs.Flush()
}
