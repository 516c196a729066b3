// Command audioseed draws random integers seeded from audio captured on stdin
// or replayed from a recording.
//
//	arecord -q -t raw -f S16_LE -r 48000 | AUDIOSEED_SAMPLE_FORMAT=s16le audioseed draw -min 1 -max 50
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"pkt.systems/audioseed"
	"pkt.systems/audioseed/capture"
	"pkt.systems/audioseed/compression"
	"pkt.systems/audioseed/config"
	"pkt.systems/audioseed/entropy"
	"pkt.systems/audioseed/internal/logging"
	"pkt.systems/audioseed/sampler"
	"pkt.systems/audioseed/seed"
)

const usage = `usage: audioseed <command> [flags]

commands:
  draw         draw integers with a sentinel policy
  uniform      draw integers without a sentinel policy
  fingerprint  print the fingerprint of the live seed
  serve        keep reseeding and log the fingerprint periodically
  record       store raw PCM from stdin in a (compressed) capture file
  newseed      print a random hex seed for draw -seed and uniform -seed

`

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		if err := config.Usage(os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "audioseed: %v\n", err)
		}
		os.Exit(2)
	}

	conf, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "audioseed: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(os.Stderr, conf.LogLevel, logging.Format(conf.LogFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "audioseed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "record":
		err = record(ctx, log, args)
	case "newseed":
		err = newSeed(os.Stdout, args)
	default:
		err = run(ctx, conf, log, cmd, args)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Str("command", cmd).Msg("failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Configuration, log zerolog.Logger, cmd string, args []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	g := audioseed.New(audioseed.WithLogger(log), audioseed.WithRegisterer(reg))

	if conf.MetricsListen != "" {
		srv := &http.Server{
			Addr:              conf.MetricsListen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics exporter stopped")
			}
		}()
		log.Info().Str("addr", conf.MetricsListen).Msg("prometheus metrics on /metrics")
		defer srv.Shutdown(context.Background())
	}

	src, err := selectSource(conf, log)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	start := func() *entropy.Collector { return g.Start(ctx, src) }

	switch cmd {
	case "draw":
		return draw(ctx, g, start, conf, args)
	case "uniform":
		return uniform(ctx, g, start, args)
	case "fingerprint":
		return fingerprint(ctx, g, start(), args)
	case "serve":
		return serve(ctx, g, start(), log, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// selectSource prefers a capture file, then audio piped to stdin, then the
// ticker. Without any of them the sampler runs on fallback seeds only.
func selectSource(conf config.Configuration, log zerolog.Logger) (capture.Source, error) {
	format, err := capture.ParseFormat(conf.SampleFormat)
	if err != nil {
		return nil, err
	}
	opts := []capture.Option{capture.WithChunkSamples(conf.ChunkSamples), capture.WithLogger(log)}
	switch {
	case conf.Capture != "":
		return capture.OpenFile(conf.Capture, format, opts...)
	case !term.IsTerminal(int(os.Stdin.Fd())):
		return capture.NewReaderSource(os.Stdin, format, append(opts, capture.WithName("stdin"))...), nil
	case conf.Tick > 0:
		return capture.NewTickerSource(conf.Tick), nil
	default:
		return capture.None("stdin is a terminal and no capture file or tick interval is configured"), nil
	}
}

// warmup waits until the first seed is mixed, the collector stops or d
// elapses, whichever comes first.
func warmup(ctx context.Context, g *audioseed.Generator, c *entropy.Collector, d time.Duration) {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	poll := time.NewTicker(5 * time.Millisecond)
	defer poll.Stop()
	for g.Store().Generation() == 0 {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case <-deadline.C:
			return
		case <-poll.C:
		}
	}
}

type rangeFlags struct {
	min, max uint
	n        int
	warmup   time.Duration
	seed     string
}

func (r *rangeFlags) register(fs *flag.FlagSet) {
	fs.UintVar(&r.min, "min", 1, "smallest value")
	fs.UintVar(&r.max, "max", 100, "largest value")
	fs.IntVar(&r.n, "n", 1, "number of draws")
	fs.DurationVar(&r.warmup, "warmup", 500*time.Millisecond, "how long to wait for the first mixed seed")
	fs.StringVar(&r.seed, "seed", "", "hex seed to draw from instead of captured audio (see newseed)")
}

// prime pins the -seed value into the store, or starts collection and waits
// for the first mixed seed. A pinned seed makes the draws reproducible, so
// nothing is collected that could replace it.
func (r *rangeFlags) prime(ctx context.Context, g *audioseed.Generator, start func() *entropy.Collector) error {
	if r.seed == "" {
		warmup(ctx, g, start(), r.warmup)
		return nil
	}
	s, err := seed.FromHex(r.seed)
	if err != nil {
		return fmt.Errorf("-seed: %w", err)
	}
	g.Store().Write(s)
	s.Zero()
	return nil
}

func (r *rangeFlags) bounds() (uint32, uint32, error) {
	if r.min > 1<<32-1 || r.max > 1<<32-1 {
		return 0, 0, fmt.Errorf("bounds must fit in 32 bits")
	}
	return uint32(r.min), uint32(r.max), nil
}

func draw(ctx context.Context, g *audioseed.Generator, start func() *entropy.Collector, conf config.Configuration, args []string) error {
	fs := flag.NewFlagSet("draw", flag.ContinueOnError)
	var rf rangeFlags
	rf.register(fs)
	policyName := fs.String("policy", conf.Policy, "sentinel policy: strict or probabilistic")
	if err := fs.Parse(args); err != nil {
		return err
	}
	policy, err := sampler.ParsePolicy(*policyName)
	if err != nil {
		return err
	}
	min, max, err := rf.bounds()
	if err != nil {
		return err
	}
	if err := rf.prime(ctx, g, start); err != nil {
		return err
	}
	for i := 0; i < rf.n; i++ {
		v, err := g.Sample(min, max, policy)
		if err != nil {
			return err
		}
		fmt.Println(v)
	}
	return nil
}

func uniform(ctx context.Context, g *audioseed.Generator, start func() *entropy.Collector, args []string) error {
	fs := flag.NewFlagSet("uniform", flag.ContinueOnError)
	var rf rangeFlags
	rf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	min, max, err := rf.bounds()
	if err != nil {
		return err
	}
	if err := rf.prime(ctx, g, start); err != nil {
		return err
	}
	for i := 0; i < rf.n; i++ {
		v, err := g.Uniform(min, max)
		if err != nil {
			return err
		}
		fmt.Println(v)
	}
	return nil
}

func fingerprint(ctx context.Context, g *audioseed.Generator, c *entropy.Collector, args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	watch := fs.Duration("watch", 0, "print the fingerprint every interval until interrupted")
	wait := fs.Duration("warmup", 500*time.Millisecond, "how long to wait for the first mixed seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	warmup(ctx, g, c, *wait)
	fmt.Println(g.Fingerprint())
	if *watch <= 0 {
		return nil
	}
	ticker := time.NewTicker(*watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Println(g.Fingerprint())
		}
	}
}

func serve(ctx context.Context, g *audioseed.Generator, c *entropy.Collector, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	interval := fs.Duration("interval", 10*time.Second, "how often to log the seed fingerprint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	stopped := c.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopped:
			if err := c.Err(); err != nil {
				log.Warn().Err(err).Msg("collection stopped, draws use fallback seeds")
			} else {
				log.Warn().Uint64("generation", g.Store().Generation()).Msg("collection stopped, seed is frozen")
			}
			stopped = nil
		case <-ticker.C:
			log.Info().
				Str("fingerprint", g.Fingerprint()).
				Uint64("generation", g.Store().Generation()).
				Msg("seed state")
		}
	}
}

func record(ctx context.Context, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	out := fs.String("o", "", "output file; .gz, .sz and .lz4 are compressed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("record: -o is required")
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("record: pipe raw PCM into stdin")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			os.Stdin.Close()
		case <-done:
		}
	}()
	n, err := writeCapture(*out, os.Stdin)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("record: %w", err)
	}
	log.Info().Int64("bytes", n).Str("file", *out).Msg("capture recorded")
	return nil
}

// writeCapture copies r into path, compressed when the extension names a
// codec. The compressor is flushed before the file is closed, and each is
// closed exactly once.
func writeCapture(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	adapter, ok := compression.ForPath(path)
	if !ok {
		n, err := io.Copy(f, r)
		return n, errors.Join(err, f.Close())
	}
	w, err := adapter.WrapWriter(f)
	if err != nil {
		return 0, errors.Join(err, f.Close())
	}
	n, err := io.Copy(w, r)
	return n, errors.Join(err, w.Close(), f.Close())
}

func newSeed(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("newseed", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := seed.Generate()
	if err != nil {
		return err
	}
	defer s.Zero()
	_, err = fmt.Fprintln(w, s.EncodeToHex())
	return err
}
