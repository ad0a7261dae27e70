package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/kpibrief/config"
	"github.com/vinodismyname/kpibrief/internal/pipeline"
	"github.com/vinodismyname/kpibrief/internal/profiling"
	"github.com/vinodismyname/kpibrief/internal/registry"
	"github.com/vinodismyname/kpibrief/internal/runtime"
	"github.com/vinodismyname/kpibrief/internal/security"
	"github.com/vinodismyname/kpibrief/internal/summarizer"
	"github.com/vinodismyname/kpibrief/internal/telemetry"
	"github.com/vinodismyname/kpibrief/internal/workbooks"
	"github.com/vinodismyname/kpibrief/pkg/mcperr"
	"github.com/vinodismyname/kpibrief/pkg/version"
)

type options struct {
	useStdio        bool
	shutdownTimeout time.Duration
	envFile         string
	logLevel        string
	showVersion     bool

	input       string
	sheet       string
	metric      string
	category    string
	date        string
	filter      string
	outputDir   string
	skipSummary bool
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var o options
	flag.BoolVar(&o.useStdio, "stdio", false, "Run the MCP tool server over stdio")
	flag.DurationVar(&o.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.StringVar(&o.envFile, "env", ".env", "dotenv file loaded before reading configuration")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	flag.StringVar(&o.input, "input", "", "Spreadsheet to profile (.xlsx or .csv); may also be the first argument")
	flag.StringVar(&o.sheet, "sheet", "", "Sheet name (default: first sheet)")
	flag.StringVar(&o.metric, "metric", "", "Numeric column to focus on (default: first numeric column)")
	flag.StringVar(&o.category, "category", "", "Categorical column for the breakdown")
	flag.StringVar(&o.date, "date", "", "Date-like column for the trend")
	flag.StringVar(&o.filter, "filter", "", "Comma-separated category values to keep")
	flag.StringVar(&o.outputDir, "out", "", "Output directory (default: KPIBRIEF_OUTPUT_DIR or .)")
	flag.BoolVar(&o.skipSummary, "skip-summary", false, "Stop after writing summary_prompt.txt")
	flag.Parse()

	if o.showVersion {
		fmt.Println(version.String())
		return
	}
	if o.input == "" && flag.NArg() > 0 {
		o.input = flag.Arg(0)
	}

	if lvl, err := zerolog.ParseLevel(o.logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	base := zlog.Logger
	if !o.useStdio {
		base = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	logger := base.With().Str("service", version.Name).Logger()

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str("file", o.envFile).Msg("dotenv not loaded")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.useStdio {
		os.Exit(serve(ctx, logger, cfg, o))
	}
	if o.input == "" {
		fmt.Fprintln(os.Stderr, "usage: kpibrief [flags] <spreadsheet.xlsx|.csv>  or  kpibrief -stdio")
		flag.PrintDefaults()
		os.Exit(2)
	}
	os.Exit(batch(ctx, logger, cfg, o))
}

// batch runs the pipeline once for the named file and prints a summary.
func batch(ctx context.Context, logger zerolog.Logger, cfg config.Config, o options) int {
	secMgr, err := security.ForFile(o.input)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	runner := pipeline.New(cfg, workbooks.NewLoader(nil, secMgr), nil, telemetry.NewHooks(logger))

	res, err := runner.Run(ctx, pipeline.Request{
		Path:         o.input,
		Sheet:        o.sheet,
		Selection:    profiling.Selection{Metric: o.metric, Category: o.category, Date: o.date},
		FilterValues: splitList(o.filter),
		OutputDir:    o.outputDir,
		SkipSummary:  o.skipSummary,
	})
	if res != nil && res.Analysis != nil {
		printOverview(os.Stdout, res.Analysis)
	}
	if res != nil && len(res.Artifacts) > 0 {
		printArtifacts(os.Stdout, res.Artifacts)
	}
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	return 0
}

// reportError prints the coded message and, for retryable codes, a hint
// that the same invocation may succeed later.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, mcperr.Message(err))
	if mcperr.Retryable(err) {
		fmt.Fprintln(w, "retryable: the same command may succeed on a later run")
	}
}

// serve runs the MCP tool server on stdio until the client disconnects.
func serve(ctx context.Context, logger zerolog.Logger, cfg config.Config, o options) int {
	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.NewManagerFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager from env")
		fmt.Fprintf(os.Stderr, "invalid security configuration; set %s\n", config.AllowedDirsEnv)
		return 1
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintf(os.Stderr, "no allowed directories configured; set %s\n", config.AllowedDirsEnv)
		return 1
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	limits := runtime.LimitsFromConfig(cfg)
	controller := runtime.NewController(limits)
	mw := runtime.NewMiddleware(controller)

	loader := workbooks.NewLoader(controller, secMgr)
	cache := workbooks.NewCache(loader, 0, 0, nil)
	cache.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
		defer cancel()
		if err := cache.Close(sctx); err != nil {
			logger.Warn().Err(err).Msg("dataset cache shutdown")
		}
	}()

	sum := summarizer.New(cfg.Service)
	toolRegistry := registry.New()
	writeFilter := registry.NewWriteToolFilterFromEnv(toolRegistry)
	handlers := registry.NewHandlers(registry.Deps{
		Cache:       cache,
		Runner:      pipeline.New(cfg, loader, controller.GateSummarizer(sum), telemetry.NewHooks(logger)),
		Limits:      limits,
		OutputDirs:  secMgr,
		AllowWrites: writeFilter.AllowWrites(),
	})

	srv := server.NewMCPServer(
		"kpibrief spreadsheet KPI server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(telemetry.ServerHooks(logger)),
		server.WithToolHandlerMiddleware(mw.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)
	registry.RegisterTools(srv, toolRegistry, handlers)
	tools, err := toolRegistry.Tools(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("tool catalog unavailable")
		return 1
	}
	toolNames := make([]string, 0, len(tools))
	for _, t := range tools {
		toolNames = append(toolNames, t.Name)
	}

	snap := controller.LimitsSnapshot()
	logger.Info().
		Str("version", version.Version()).
		Str("model", sum.Model()).
		Strs("tools", toolNames).
		Int("max_concurrent_requests", snap.MaxConcurrentRequests).
		Int("max_open_workbooks", snap.MaxOpenWorkbooks).
		Int("max_concurrent_summaries", snap.MaxConcurrentSummaries).
		Dur("operation_timeout", snap.OperationTimeout).
		Bool("writes_enabled", writeFilter.AllowWrites()).
		Msg("server bootstrap configured")

	stdio := server.NewStdioServer(srv)
	stdio.SetContextFunc(func(c context.Context) context.Context {
		return logger.WithContext(c)
	})
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		// Use stderr for transport errors so clients don't misinterpret output
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
