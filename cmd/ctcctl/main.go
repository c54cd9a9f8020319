package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srediag/plugin-ctc/adapter"
	"github.com/srediag/plugin-ctc/internal/logging"
	"github.com/srediag/plugin-ctc/pkg/calibrate"
	"github.com/srediag/plugin-ctc/pkg/ctc"
	"github.com/srediag/plugin-ctc/pkg/loopback"
	"github.com/srediag/plugin-ctc/pkg/timing"
)

const busyRetryInterval = 100 * time.Millisecond

type options struct {
	config   string
	address  string
	landmark string
	timeout  time.Duration
	logLevel int

	in      string
	message string
	out     string
	size    int
	retries uint64
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	mode := os.Args[1]
	opts, err := parseFlags(mode, os.Args[2:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fatalf("%v", err)
	}
	logging.SetLogLevel(opts.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	switch mode {
	case "calibrate":
		err = runCalibrate(ctx, opts)
	case "probe":
		err = runProbe(ctx, opts)
	case "send":
		err = runSend(ctx, opts)
	case "recv":
		err = runRecv(ctx, opts)
	case "selftest":
		err = runSelftest(ctx, opts, os.Stdout)
	case "serve":
		err = runServe(ctx, opts)
	default:
		usage()
		fatalf("unknown mode %q", mode)
	}
	if err != nil {
		fatalf("%s: %v", mode, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ctcctl calibrate|probe|send|recv|selftest|serve [flags]")
}

func parseFlags(mode string, args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	fs.StringVar(&opts.config, "config", "", "TOML config file")
	fs.StringVar(&opts.address, "address", "", "explicit region base, decimal or 0x hex")
	fs.StringVar(&opts.landmark, "landmark", "", "shared module or file backing the region")
	fs.DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 waits forever)")
	fs.IntVar(&opts.logLevel, "log-level", logging.Level(), "0 trace .. 5 silent")
	fs.StringVar(&opts.in, "in", "", "send: file to transmit (- for stdin)")
	fs.StringVar(&opts.message, "msg", "", "send: literal message to transmit")
	fs.StringVar(&opts.out, "out", "", "recv: write payload to file instead of stdout")
	fs.IntVar(&opts.size, "size", 64, "recv/selftest: payload size in bytes")
	fs.Uint64Var(&opts.retries, "retries", 0, "recv: extra transfers to wait for until every block has arrived")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.size < 0 {
		return opts, fmt.Errorf("invalid -size %d", opts.size)
	}
	return opts, nil
}

func loadConfig(opts options) (*ctc.Config, error) {
	cfg := ctc.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = ctc.LoadConfig(opts.config); err != nil {
			return nil, err
		}
	}
	if opts.address != "" {
		v, err := strconv.ParseUint(opts.address, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parse address: %w", err)
		}
		cfg.Address = uintptr(v)
	}
	if opts.landmark != "" {
		cfg.Landmark = opts.landmark
	}
	return adapter.Instrument(cfg), nil
}

func openChannel(ctx context.Context, opts options) (*ctc.Channel, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return ctc.New(ctx, cfg)
}

func runCalibrate(ctx context.Context, opts options) error {
	host, err := calibrate.Describe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host info unavailable: %v\n", err)
	}
	fmt.Printf("cpu:       %s %s (family %s model %s)\n", host.Vendor, host.ModelName, host.Family, host.Model)
	fmt.Printf("cache:     %d KB, line %d bytes\n", host.CacheSizeKB, host.LineSize)
	fmt.Printf("timing:    %t, clflushopt %t\n", host.Timing, host.FlushOpt)

	ch, err := openChannel(ctx, opts)
	if err != nil {
		return err
	}
	defer calibrate.Release(ctx) //nolint:errcheck
	fmt.Printf("region:    %s\n", ch.Region())
	return nil
}

func runProbe(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	region, err := calibrate.Initialize(ctx, calibrate.Options{
		Address:  cfg.Address,
		Landmark: cfg.Landmark,
		LineSize: cfg.LineSize,
	})
	if err != nil {
		return err
	}
	defer calibrate.Release(ctx) //nolint:errcheck
	prober, err := timing.NewProber(region, timing.Options{
		Threshold:     cfg.Threshold,
		MeasureRounds: cfg.MeasureRounds,
		VoteRounds:    cfg.VoteRounds,
	})
	if err != nil {
		return err
	}
	positive := 0
	for _, s := range prober.Survey() {
		mark := ""
		if s.Positive {
			mark = " *"
			positive++
		}
		fmt.Printf("line %2d  %#x  %5d cycles%s\n", s.Line, region.Line(s.Line), s.Duration, mark)
	}
	fmt.Printf("%d/%d lines above %d cycles\n", positive, calibrate.Lines, cfg.Threshold)
	return nil
}

func readPayload(opts options) ([]byte, error) {
	switch {
	case opts.message != "":
		return []byte(opts.message), nil
	case opts.in == "-":
		return io.ReadAll(os.Stdin)
	case opts.in != "":
		return os.ReadFile(opts.in)
	default:
		return nil, errors.New("nothing to send, use -msg or -in")
	}
}

func runSend(ctx context.Context, opts options) error {
	data, err := readPayload(opts)
	if err != nil {
		return err
	}
	ch, err := openChannel(ctx, opts)
	if err != nil {
		return err
	}
	defer calibrate.Release(ctx) //nolint:errcheck
	st, err := ch.Transmit(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "sent %d bytes: %s\n", len(data), st)
	return nil
}

func runRecv(ctx context.Context, opts options) error {
	ch, err := openChannel(ctx, opts)
	if err != nil {
		return err
	}
	defer calibrate.Release(ctx) //nolint:errcheck

	dst := make([]byte, opts.size)
	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, opts.retries)
	st, err := ch.ReceiveWithRetry(ctx, dst, policy)
	fmt.Fprintf(os.Stderr, "received: %s\n", st)
	if err != nil && !errors.Is(err, ctc.ErrIncomplete) {
		return err
	}
	if opts.out != "" {
		return errors.Join(err, os.WriteFile(opts.out, dst, 0o644))
	}
	_, werr := os.Stdout.Write(dst)
	return errors.Join(err, werr)
}

func runSelftest(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	link := loopback.NewLink(0)
	defer link.Close()
	tx, err := ctc.NewWithLink(link, cfg)
	if err != nil {
		return err
	}
	rx, err := ctc.NewWithLink(link, cfg)
	if err != nil {
		return err
	}
	runner, err := loopback.NewRunner(1)
	if err != nil {
		return err
	}
	defer runner.Release()

	data := make([]byte, opts.size)
	for i := range data {
		data[i] = byte(i)
	}
	dst := make([]byte, len(data))
	start := time.Now()
	res, err := runner.Exchange(ctx, tx, rx, data, dst)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, dst) {
		return fmt.Errorf("payload mismatch: %s", res.Received)
	}
	fmt.Fprintf(out, "ok %d bytes in %s: sent %s, received %s\n", len(data), time.Since(start), res.Sent, res.Received)
	return nil
}

func runServe(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ch, err := ctc.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer calibrate.Release(context.Background()) //nolint:errcheck
	ctc.RegisterMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	adapter.Mount(mux, adapter.NewHealthHandler(ch))
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	recvCh := make(chan error, 1)
	go func() {
		recvCh <- receiveLoop(ctx, ch, opts.size, os.Stdout)
	}()
	fmt.Fprintf(os.Stderr, "serving metrics and health on %s for region %s\n", cfg.MetricsAddr, ch.Region())

	var recvErr error
	select {
	case err := <-errCh:
		return err
	case recvErr = <-recvCh:
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return recvErr
}

// receiveLoop receives transfers of size bytes until ctx is done and prints
// each one on its own line to out. It stops on the first error that another
// attempt would hit again.
func receiveLoop(ctx context.Context, ch *ctc.Channel, size int, out io.Writer) error {
	dst := make([]byte, size)
	for {
		st, err := ch.Receive(ctx, dst)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ctc.ErrBusy):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(busyRetryInterval):
			}
			continue
		case err != nil:
			return err
		}
		fmt.Fprintf(out, "%q %s\n", dst, st)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ctcctl: "+format+"\n", args...)
	os.Exit(1)
}
