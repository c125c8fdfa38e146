package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/holla2040/loxr/internal/config"
	"github.com/holla2040/loxr/internal/diag"
	"github.com/holla2040/loxr/internal/playground"
	"github.com/holla2040/loxr/internal/protocol"
	"github.com/holla2040/loxr/internal/registry"
	"github.com/holla2040/loxr/internal/remote"
	"github.com/holla2040/loxr/internal/report"
	"github.com/holla2040/loxr/internal/script/ast"
	"github.com/holla2040/loxr/internal/script/lexer"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/holla2040/loxr/internal/script/runner"
	"github.com/holla2040/loxr/internal/script/validate"
	"github.com/holla2040/loxr/internal/store"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
)

const version = "0.4.0"

// Exit codes beyond those a run produces, following sysexits.h.
const (
	exitNoInput     = 66
	exitUnavailable = 69
)

// cli carries the process streams and resolved configuration into every
// subcommand.
type cli struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	diag   *diag.Printer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := runCLI(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func runCLI(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("loxr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default $LOXR_CONFIG or "+config.DefaultPath+")")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runner.ExitOK
		}
		return runner.ExitUsage
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "loxr: %v\n", err)
		return runner.ExitUsage
	}

	c := &cli{
		ctx:    ctx,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		diag:   diag.New(stderr, cfg.UseColor(isTerminal(stderr))),
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return c.repl(nil)
	}

	switch rest[0] {
	case "run":
		return c.run(rest[1:])
	case "repl":
		return c.repl(rest[1:])
	case "tokens":
		return c.tokens(rest[1:])
	case "ast":
		return c.ast(rest[1:])
	case "validate":
		return c.validate(rest[1:])
	case "serve":
		return c.serve(rest[1:])
	case "worker":
		return c.worker(rest[1:])
	case "submit":
		return c.submit(rest[1:])
	case "history":
		return c.history(rest[1:])
	case "version":
		fmt.Fprintln(stdout, "loxr", version)
		return runner.ExitOK
	case "help":
		usage(stdout)
		return runner.ExitOK
	}

	if len(rest) > 1 {
		usage(stderr)
		return runner.ExitUsage
	}
	return c.run(rest)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: loxr [-config PATH] [file]")
	fmt.Fprintln(w, "       loxr [-config PATH] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "With no arguments, starts the interactive prompt. With one file, runs it.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run [-json] [-record] [-timeout D] FILE   run a program")
	fmt.Fprintln(w, "  repl [-plain]                             interactive prompt")
	fmt.Fprintln(w, "  tokens FILE                               dump the token stream")
	fmt.Fprintln(w, "  ast FILE                                  print the syntax tree in prefix form")
	fmt.Fprintln(w, "  validate FILE                             JSON validation result")
	fmt.Fprintln(w, "  serve [-addr A] [-relay]                  HTTP/WebSocket playground")
	fmt.Fprintln(w, "  worker [-record]                          run jobs from Redis")
	fmt.Fprintln(w, "  submit [-timeout D] FILE                  run FILE on a remote worker")
	fmt.Fprintln(w, "  history [-limit N] [-format F] [-o FILE]  list recorded runs (table, csv, json, pdf)")
	fmt.Fprintln(w, "  version                                   print the version")
}

// newFlagSet returns a subcommand flag set whose usage prints to stderr.
func (c *cli) newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: loxr %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parseFile parses flags and requires exactly one positional file argument.
func (c *cli) parseFile(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", false
	}
	return fs.Arg(0), true
}

func (c *cli) readSource(path string) (string, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return "", exitNoInput
	}
	return string(data), runner.ExitOK
}

func (c *cli) openStore() (*store.Store, error) {
	s, err := store.New(c.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open run history %s: %w", c.cfg.Store.Path, err)
	}
	return s, nil
}

func (c *cli) redisClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: c.cfg.Redis.Addr})
}

func (c *cli) source(service string) protocol.Source {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return sourceFor(service, host, os.Getpid())
}

func sourceFor(service, host string, pid int) protocol.Source {
	return protocol.Source{Service: service, Instance: protocol.InstanceName(host, pid), Version: version}
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func (c *cli) run(args []string) int {
	fs := c.newFlagSet("run", "FILE")
	asJSON := fs.Bool("json", false, "print the run report as JSON instead of program output")
	record := fs.Bool("record", false, "save the run to the history database")
	timeout := fs.Duration("timeout", 0, "abort the program after this long (0 = no limit)")
	path, ok := c.parseFile(fs, args)
	if !ok {
		return runner.ExitUsage
	}

	src, code := c.readSource(path)
	if code != runner.ExitOK {
		return code
	}

	opts := []runner.Option{runner.WithTimeout(*timeout)}
	if !*asJSON {
		opts = append(opts, runner.WithOutput(c.stdout))
	}
	rep := runner.Run(c.ctx, filepath.Base(path), src, opts...)

	if *record {
		if err := c.recordRun(rep); err != nil {
			fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
	} else {
		c.diag.Print(rep.Diagnostics)
	}
	return rep.ExitCode
}

func (c *cli) recordRun(rep *result.RunReport) error {
	s, err := c.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.RecordRun(rep)
}

// ---------------------------------------------------------------------------
// tokens, ast, validate
// ---------------------------------------------------------------------------

func (c *cli) tokens(args []string) int {
	path, ok := c.parseFile(c.newFlagSet("tokens", "FILE"), args)
	if !ok {
		return runner.ExitUsage
	}
	src, code := c.readSource(path)
	if code != runner.ExitOK {
		return code
	}

	toks, errs := lexer.New(src).Tokenize()
	for _, tok := range toks {
		fmt.Fprintf(c.stdout, "%-8s %s\n", tok.Pos, tok)
	}
	if len(errs) > 0 {
		diags := make([]result.Diagnostic, len(errs))
		for i, le := range errs {
			diags[i] = result.Diagnostic{Phase: result.PhaseLex, Line: le.Line, Column: le.Column, Lexeme: le.Lexeme, Message: le.Message}
		}
		c.diag.Print(diags)
		return runner.ExitDataErr
	}
	return runner.ExitOK
}

func (c *cli) ast(args []string) int {
	path, ok := c.parseFile(c.newFlagSet("ast", "FILE"), args)
	if !ok {
		return runner.ExitUsage
	}
	src, code := c.readSource(path)
	if code != runner.ExitOK {
		return code
	}

	program, errs := validate.Analyze(src)
	if len(errs) > 0 {
		c.diag.Print(validationDiagnostics(errs))
		return runner.ExitDataErr
	}
	fmt.Fprint(c.stdout, ast.PrintProgram(program))
	return runner.ExitOK
}

func (c *cli) validate(args []string) int {
	path, ok := c.parseFile(c.newFlagSet("validate", "FILE"), args)
	if !ok {
		return runner.ExitUsage
	}
	res, err := validate.ValidateFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return exitNoInput
	}

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
	if !res.Valid {
		return runner.ExitDataErr
	}
	return runner.ExitOK
}

func validationDiagnostics(errs []validate.ValidationError) []result.Diagnostic {
	diags := make([]result.Diagnostic, len(errs))
	for i, ve := range errs {
		diags[i] = result.Diagnostic{
			Phase:    ve.Phase,
			Line:     ve.Line,
			Column:   ve.Column,
			Lexeme:   ve.Lexeme,
			Severity: ve.Severity,
			Message:  ve.Message,
			Context:  ve.Context,
		}
	}
	return diags
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func (c *cli) serve(args []string) int {
	fs := c.newFlagSet("serve", "")
	addr := fs.String("addr", c.cfg.Server.Addr, "HTTP listen address")
	relay := fs.Bool("relay", false, "track workers and relay their heartbeats to WebSocket clients")
	if err := fs.Parse(args); err != nil {
		return runner.ExitUsage
	}

	logger := log.New(c.stderr, "[serve] ", log.LstdFlags)
	log.SetOutput(c.stderr)

	db, err := c.openStore()
	if err != nil {
		logger.Print(err)
		return runner.ExitSoftware
	}
	defer db.Close()
	logger.Printf("Opened database at %s", c.cfg.Store.Path)

	hub := playground.NewHub(c.cfg.Server.RunTimeout)
	handler := &playground.Handler{
		Store:      db,
		Hub:        hub,
		RunTimeout: c.cfg.Server.RunTimeout,
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	if *relay {
		rdb := c.redisClient()
		defer rdb.Close()

		mon := remote.NewHealthMonitor(rdb,
			remote.WithInterval(5*time.Second),
			remote.WithHealthLogger(logger),
			remote.WithOnDown(func() {
				hub.BroadcastEvent("redis_health", map[string]string{"status": "disconnected"})
			}),
			remote.WithOnUp(func() {
				hub.BroadcastEvent("redis_health", map[string]string{"status": "connected"})
			}),
		)
		handler.RedisHealth = mon
		handler.Workers = registry.New()

		wg.Add(3)
		go func() {
			defer wg.Done()
			mon.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			heartbeats := remote.HeartbeatChannelFor(c.cfg.Redis.JobsQueue)
			mon.Supervise(ctx, "heartbeat relay", func(ctx context.Context) error {
				return handler.Relay(ctx, rdb, heartbeats)
			})
		}()
		go func() {
			defer wg.Done()
			handler.WatchWorkers(ctx, 5*time.Second)
		}()
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"service":"loxr-playground","version":"` + version + `"}`))
	})

	server := &http.Server{Addr: *addr, Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server listening on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	code := runner.ExitOK
	select {
	case <-ctx.Done():
		logger.Println("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Printf("HTTP server error: %v", err)
			code = runner.ExitSoftware
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
	return code
}

// ---------------------------------------------------------------------------
// worker, submit
// ---------------------------------------------------------------------------

func (c *cli) worker(args []string) int {
	fs := c.newFlagSet("worker", "")
	record := fs.Bool("record", false, "save every run to the history database")
	heartbeat := fs.Duration("heartbeat", 5*time.Second, "heartbeat interval (0 disables)")
	if err := fs.Parse(args); err != nil {
		return runner.ExitUsage
	}

	logger := log.New(c.stderr, "[worker] ", log.LstdFlags)

	rdb := c.redisClient()
	defer rdb.Close()
	if err := rdb.Ping(c.ctx).Err(); err != nil {
		logger.Printf("Failed to connect to Redis at %s: %v", c.cfg.Redis.Addr, err)
		return exitUnavailable
	}
	logger.Printf("Connected to Redis at %s", c.cfg.Redis.Addr)

	opts := []remote.WorkerOption{
		remote.WithWorkerLogger(logger),
		remote.WithHeartbeat(*heartbeat),
	}
	if c.cfg.Server.RunTimeout > 0 {
		opts = append(opts, remote.WithRunTimeout(c.cfg.Server.RunTimeout))
	}
	if *record {
		db, err := c.openStore()
		if err != nil {
			logger.Print(err)
			return runner.ExitSoftware
		}
		defer db.Close()
		opts = append(opts, remote.WithRecorder(db))
	}

	w := remote.NewWorker(rdb, c.cfg.Redis.JobsQueue, c.source("loxr_worker"), opts...)
	if err := w.Run(c.ctx); err != nil {
		logger.Print(err)
		return exitUnavailable
	}
	hb := w.Heartbeat()
	logger.Printf("Stopped after %d jobs (%d failed)", hb.JobsProcessed, hb.JobsFailed)
	return runner.ExitOK
}

func (c *cli) submit(args []string) int {
	fs := c.newFlagSet("submit", "FILE")
	timeout := fs.Duration("timeout", 5*time.Second, "remote execution timeout")
	path, ok := c.parseFile(fs, args)
	if !ok {
		return runner.ExitUsage
	}
	src, code := c.readSource(path)
	if code != runner.ExitOK {
		return code
	}

	rdb := c.redisClient()
	defer rdb.Close()

	client := remote.NewClient(rdb, c.source("loxr_submit"), c.cfg.Redis.JobsQueue, c.cfg.Redis.ResultsPrefix)
	rep, err := client.Submit(c.ctx, filepath.Base(path), src, *timeout)
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return exitUnavailable
	}

	fmt.Fprint(c.stdout, rep.Output)
	c.diag.Print(rep.Diagnostics)
	return rep.ExitCode
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func (c *cli) history(args []string) int {
	fs := c.newFlagSet("history", "")
	limit := fs.Int("limit", 20, "number of most recent runs")
	format := fs.String("format", "table", "table, csv, json, or pdf")
	out := fs.String("o", "", "write to FILE instead of stdout")
	if err := fs.Parse(args); err != nil {
		return runner.ExitUsage
	}
	switch *format {
	case "table", report.FormatCSV, report.FormatJSON, report.FormatPDF:
	default:
		fmt.Fprintf(c.stderr, "loxr: unknown format %q\n", *format)
		return runner.ExitUsage
	}

	db, err := c.openStore()
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return runner.ExitSoftware
	}
	defer db.Close()

	runs, err := db.ListRuns(*limit)
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return runner.ExitSoftware
	}

	if *out == "" {
		if err := writeHistory(c.stdout, *format, runs); err != nil {
			fmt.Fprintf(c.stderr, "loxr: %v\n", err)
			return runner.ExitSoftware
		}
		return runner.ExitOK
	}

	f, err := createOutput(*out)
	if err != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", err)
		return runner.ExitSoftware
	}
	werr := writeHistory(f, *format, runs)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("write %s: %w", *out, cerr)
	}
	if werr != nil {
		fmt.Fprintf(c.stderr, "loxr: %v\n", werr)
		return runner.ExitSoftware
	}
	return runner.ExitOK
}

// createOutput opens the file named by history -o.
var createOutput = func(name string) (io.WriteCloser, error) {
	return os.Create(name)
}

func writeHistory(w io.Writer, format string, runs []result.RunReport) error {
	if format == "table" {
		_, err := fmt.Fprintln(w, runTable(runs))
		return err
	}
	return report.Export(w, format, runs)
}

func runTable(runs []result.RunReport) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN ID", "NAME", "STATUS", "EXIT", "STARTED", "MS")
	for _, r := range runs {
		t.Row(r.RunID[:min(8, len(r.RunID))], r.Name, r.Status, strconv.Itoa(r.ExitCode),
			r.StartTime.Local().Format("2006-01-02 15:04:05"), strconv.FormatInt(r.DurationMs, 10))
	}
	return t.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
