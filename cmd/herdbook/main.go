// Command herdbook runs the livestock registry API and offers snapshot
// export and import against the configured storage backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"herdbook/internal/adapters/httpapi"
	"herdbook/internal/ai"
	"herdbook/internal/config"
	"herdbook/internal/core"
	"herdbook/internal/enrollment"
	"herdbook/internal/infra/broadcast/kafka"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/internal/photos"
	"herdbook/internal/platform/logger"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	exitFunc   = os.Exit
	loadConfig = func() (config.Config, error) { return config.Load() }
	// listen is swapped in tests to bind an ephemeral port.
	listen = net.Listen
	// serveReady is notified with the bound address once the API accepts connections.
	serveReady = func(string) {}
)

const readHeaderTimeout = 10 * time.Second

const usage = `usage: herdbook <command> [flags]

commands:
  serve [-debug] [-trace FILE]
                      run the HTTP API (default)
  export              write the registry snapshot as JSON to stdout
  import -file PATH   replace the registry with a JSON snapshot
`

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}
	var err error
	switch command {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = serveCmd(ctx, args, stderr)
	case "export":
		err = exportCmd(args, stdout, stderr)
	case "import":
		err = importCmd(args, stdout, stderr)
	case "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", command, usage)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	var usageErr usageError
	if errors.As(err, &usageErr) {
		_, _ = fmt.Fprintln(stderr, usageErr.Error())
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "herdbook %s failed: %v\n", command, err)
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

// app holds the pieces every command shares.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  core.PersistentStore
}

func openApp(stderr io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.Logger(), stderr)
	if err != nil {
		return nil, err
	}
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine(), cfg.Storage(), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &app{cfg: cfg, logger: log, store: store}, nil
}

func (a *app) service(opts ...core.Option) *core.Service {
	return core.NewService(a.store, append([]core.Option{core.WithLogger(a.logger)}, opts...)...)
}

func (a *app) close() {
	if err := core.CloseStore(a.store); err != nil {
		a.logger.Warn("close storage", "error", err)
	}
}

func serveCmd(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	debug := fs.Bool("debug", false, "mount pprof and expvar under /debug")
	trace := fs.String("trace", "", "append one JSON line per service operation to this file (overrides HERDBOOK_TRACE_FILE)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := openApp(stderr)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.MultiMetricsRecorder{core.NewPrometheusMetricsRecorder(reg)}
	if *debug {
		metrics = append(metrics, core.NewExpvarMetricsRecorder(""))
	}
	opts := []core.Option{
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewLogAuditRecorder(log.With("component", "audit"))),
	}
	if path := traceFile(*trace, rt.cfg.TraceFile); path != "" {
		f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
		log.Info("tracing service operations", "file", path)
	}
	if rt.cfg.KafkaEnabled() {
		publisher, err := kafka.NewPublisher(kafka.Config{Brokers: rt.cfg.KafkaBrokers, Topic: rt.cfg.KafkaTopic})
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		opts = append(opts, core.WithAlertPublisher(publisher))
	}
	engine := rt.service(opts...)

	store, err := photos.Open(ctx, rt.cfg.Photos())
	if err != nil {
		return fmt.Errorf("photos: %w", err)
	}
	aiCfg := rt.cfg.AI()
	aiCfg.Logger = log.With("component", "ai")
	client := ai.New(aiCfg)
	if !client.Enabled() {
		log.Warn("no AI key configured; descriptions and biometric checks are simulated")
	}
	enroller := enrollment.New(engine, store, client, client, enrollment.WithLogger(log))
	apiOpts := []httpapi.Option{
		httpapi.WithLogger(log.With("component", "http")),
		httpapi.WithMetricsGatherer(reg),
		httpapi.WithPhotoStore(store),
	}
	if *debug {
		apiOpts = append(apiOpts, httpapi.WithProfiler())
	}
	api := httpapi.New(engine, enroller, client, apiOpts...)

	ln, err := listen("tcp", rt.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: api, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("herdbook listening",
		"addr", ln.Addr().String(),
		"storage", rt.cfg.StorageDriver,
		"photos", store.Driver(),
		"ai_model", client.Model(),
		"kafka", rt.cfg.KafkaEnabled())
	serveReady(ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.cfg.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func traceFile(flagValue, configured string) string {
	if flagValue != "" {
		return flagValue
	}
	return configured
}

func exportCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := openApp(stderr)
	if err != nil {
		return err
	}
	defer rt.close()
	snapshot, ok := rt.service().ExportSnapshot()
	if !ok {
		return fmt.Errorf("storage %s cannot export", rt.cfg.StorageDriver)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func importCmd(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var path string
	fs.StringVar(&path, "file", "", "path to a JSON snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if path == "" {
		return usageError{msg: "import requires -file"}
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	snapshot, problems, err := memory.DecodeSnapshotJSON(data)
	if err != nil {
		return err
	}
	rt, err := openApp(stderr)
	if err != nil {
		return err
	}
	defer rt.close()
	for _, p := range problems {
		rt.logger.Warn("discarding unreadable bucket", "bucket", p.Bucket, "error", p.Err)
	}
	if err := rt.service().ImportSnapshot(context.Background(), snapshot); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "imported %d users, %d animals, %d transfer requests, %d alerts, %d butchery records\n",
		len(snapshot.Users), len(snapshot.Animals), len(snapshot.TransferRequests), len(snapshot.Alerts), len(snapshot.ButcheryRecords))
	return err
}
