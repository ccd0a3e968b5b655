package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/stride-agent/stride/pkg/cache"
	"github.com/stride-agent/stride/pkg/compact"
	"github.com/stride-agent/stride/pkg/config"
	"github.com/stride-agent/stride/pkg/llm"
	"github.com/stride-agent/stride/pkg/loop"
	"github.com/stride-agent/stride/pkg/ops"
	"github.com/stride-agent/stride/pkg/tools"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/verify"
)

// Version is set at build time via ldflags.
var Version string

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

const systemPrompt = `You are an autonomous software task agent working in a sandboxed workspace. You complete the user's task by running tools: execute shell commands, read and modify files, and search the workspace. Work step by step, verify your changes, and when the task is fully done, respond with a final summary and no tool calls. Never claim completion before the work is verifiably finished.`

func main() {
	defer setupMemProfile()()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger := newLogger()

	instruction, err := readInstruction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}

	var base llm.Provider
	switch cfg.Provider {
	case "openai":
		base = llm.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		base = llm.NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown provider %q\n", cfg.Provider)
		os.Exit(1)
	}
	retrier := llm.NewRetrier(base, uint(cfg.MaxRetries), cfg.RetryMaxDelay, logger)
	// One meter for the whole run so compaction and verification calls
	// count against the same usage totals and cost limit.
	meter := llm.NewMeter(retrier, cfg.CostLimitUSD)

	fileOps := &ops.RealFileOps{}
	execOps := &ops.RealExecOps{}
	registry := tools.NewToolRegistry()
	registry.Register(tools.NewBashTool(workDir, execOps))
	registry.Register(tools.NewReadTool(workDir, fileOps))
	registry.Register(tools.NewWriteTool(workDir, fileOps))
	registry.Register(tools.NewEditTool(workDir, fileOps))
	registry.Register(tools.NewListTool(workDir, fileOps))
	registry.Register(tools.NewFindTool(workDir, fileOps, execOps))
	registry.Register(tools.NewGrepTool(workDir, fileOps, execOps))

	dispatcher := tools.NewDispatcher(registry, cfg.ToolTimeout, cfg.ToolOutputMax, logger)
	verifier := verify.New(meter, dispatcher, verify.Config{
		MaxVerificationCalls: cfg.MaxVerificationCalls,
		MaxParseRetries:      cfg.MaxParseRetries,
		RequireConfirmation:  cfg.RequireConfirmation,
	}, logger)
	compactor := compact.NewEngine(meter, compact.Config{
		MaxTokens:          cfg.MaxTokens,
		Threshold:          cfg.CompactionThreshold,
		PruneTarget:        cfg.PruneTarget,
		PruneProtectTokens: cfg.PruneProtectTokens,
		PruneMinTokens:     cfg.PruneMinTokens,
		MinKeepTurns:       cfg.MinKeepTurns,
		SummaryMaxTokens:   cfg.SummaryMaxTokens,
	}, logger)
	segmenter := cache.NewSegmenter(cfg.CacheEnabled, cfg.ExtendedCacheTTL)

	controller := loop.New(meter, registry, dispatcher, compactor, segmenter, verifier, loop.Config{
		SystemPrompt:       systemPrompt,
		MaxSteps:           cfg.MaxSteps,
		WallClock:          cfg.WallClock,
		MaxOutputTokens:    cfg.MaxOutputTokens,
		MaxParseRetries:    cfg.MaxParseRetries,
		MaxOverflowRetries: cfg.MaxOverflowRetries,
	}, logger)

	controller.Events().Subscribe(func(ev types.AgentEvent) {
		switch ev.Type {
		case types.EventStepStart:
			fmt.Fprintf(os.Stderr, "%s[step %d]%s\n", colorGray, ev.Step, colorReset)
		case types.EventToolStart:
			fmt.Fprintf(os.Stderr, "%s[tool: %s]%s\n", colorGray, ev.ToolName, colorReset)
		case types.EventCompaction:
			fmt.Fprintf(os.Stderr, "%s[compacting: %s]%s\n", colorYellow, ev.Content, colorReset)
		case types.EventVerify:
			fmt.Fprintf(os.Stderr, "%s[verifying completion]%s\n", colorGray, colorReset)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\n%s[interrupted]%s\n", colorYellow, colorReset)
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "%sstride%s (model: %s, provider: %s)\n", colorGreen, colorReset, meter.GetModel(), cfg.Provider)

	res, err := controller.Run(ctx, instruction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorYellow, err, colorReset)
		os.Exit(1)
	}

	if res.FinalText != "" {
		fmt.Println(res.FinalText)
	}
	fmt.Fprintf(os.Stderr, "%ssteps: %d, tokens: %d (cached %d), cost: $%.4f%s\n",
		colorGray, res.Steps, res.Usage.Total(), res.Usage.CachedTokens, res.Cost, colorReset)

	if !res.Completed {
		fmt.Fprintf(os.Stderr, "%stask not completed: %s%s\n", colorYellow, res.Reason, colorReset)
		os.Exit(1)
	}
}

// readInstruction takes the task from command-line arguments, or from
// stdin when no arguments are given.
func readInstruction() (string, error) {
	if len(os.Args) > 1 {
		return strings.TrimSpace(strings.Join(os.Args[1:], " ")), nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read instruction from stdin: %w", err)
	}
	instruction := strings.TrimSpace(string(data))
	if instruction == "" {
		return "", fmt.Errorf("no task given: pass it as arguments or on stdin")
	}
	return instruction, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	switch strings.ToLower(os.Getenv("STRIDE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
