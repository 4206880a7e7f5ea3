package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/achadsiri/gemini-cli/agent"
	"github.com/achadsiri/gemini-cli/config"
	"github.com/achadsiri/gemini-cli/llm"
)

// errRequestFailed is returned after an error event was already printed.
var errRequestFailed = errors.New("request failed")

// mutatingTools need approval, which a non-interactive run cannot ask for.
var mutatingTools = []string{agent.ToolWriteFile, agent.ToolReplace, agent.ToolShell}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt, err := readPrompt(args, cmd.InOrStdin(), term.IsTerminal(int(os.Stdin.Fd())))
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.LoadOptions{TargetDir: targetDir, Logger: logger})
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Debug("configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("target_dir", cfg.TargetDir),
		zap.Int("memory_files", cfg.MemoryFileCount),
		zap.String("env_file", cfg.EnvFile))

	backend, modelID, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	env, err := agent.NewLocalExecutionEnvironment(cfg.TargetDir)
	if err != nil {
		return err
	}
	tools := agent.NewToolRegistry()
	agent.RegisterCoreTools(tools, env, coreToolOptions(cfg))

	client, err := agent.NewClient(ctx, backend, modelID, tools, env, clientOptions(cfg)...)
	if err != nil {
		return err
	}

	events := client.SendMessageStream(ctx, []llm.Part{llm.TextPart(prompt)})
	return printEvents(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, showThought)
}

// readPrompt joins the arguments, or reads stdin when there are none and it
// is not a terminal.
func readPrompt(args []string, stdin io.Reader, stdinIsTerminal bool) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if stdinIsTerminal {
		return "", errors.New("no prompt given: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("empty prompt on stdin")
	}
	return prompt, nil
}

// applyFlags lets explicitly set flags override the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = model
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("all-files") {
		cfg.FullContext = allFiles
	}
	if yolo {
		cfg.ApprovalMode = config.ApprovalYolo
	}
	if flags.Changed("max-turns") {
		cfg.MaxTurns = maxTurns
	}
	if flags.Changed("provider") {
		cfg.Provider = provider
	}
}

func coreToolOptions(cfg *config.Config) agent.CoreToolOptions {
	opts := agent.CoreToolOptions{
		Allow:   cfg.CoreTools,
		Exclude: cfg.ExcludeTools,
	}
	if cfg.ApprovalMode != config.ApprovalYolo {
		opts.Exclude = append(append([]string{}, opts.Exclude...), mutatingTools...)
	}
	return opts
}

func clientOptions(cfg *config.Config) []agent.Option {
	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithReporter(agent.NewFileReporter(logger)),
		agent.WithMaxTurns(cfg.MaxTurns),
		agent.WithCompressionThreshold(cfg.CompressionThreshold),
		agent.WithFullContext(cfg.FullContext),
		agent.WithUserMemory(cfg.UserMemory),
	}
	if cfg.TokenLimit > 0 {
		opts = append(opts, agent.WithTokenLimit(cfg.TokenLimit))
	}
	if len(cfg.ToolOutputLimits) > 0 {
		opts = append(opts, agent.WithToolOutputLimits(cfg.ToolOutputLimits, nil))
	}
	if cfg.Provider == config.ProviderGemini {
		opts = append(opts, agent.WithJSONModel(llm.DefaultFlashModel))
	}
	return opts
}

// newBackend builds the provider router for the configured backend and
// returns the model id to request.
func newBackend(ctx context.Context, cfg *config.Config) (*llm.Client, string, error) {
	var (
		p       llm.Provider
		modelID = cfg.Model
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		adapter, err := llm.NewGenAIAdapter(ctx, llm.GenAIConfig{
			APIKey:      cfg.APIKey,
			UseVertexAI: cfg.VertexAI,
			Project:     cfg.Project,
			Location:    cfg.Location,
			UserAgent:   cfg.UserAgent,
		})
		if err != nil {
			return nil, "", err
		}
		p = adapter
	default:
		if strings.HasPrefix(modelID, "gemini") {
			modelID = ""
			if models := llm.ListModels(cfg.Provider); len(models) > 0 {
				modelID = models[0].ID
			}
		}
		adapter, err := llm.NewGollmAdapter(cfg.Provider, cfg.ProviderAPIKey(), llm.WithModel(modelID))
		if err != nil {
			return nil, "", err
		}
		p = adapter
	}

	client := llm.NewClient(
		llm.WithProvider(cfg.Provider, p),
		llm.WithLogger(logger),
		llm.WithMiddleware(llm.LoggingMiddleware(logger)),
		llm.WithStreamMiddleware(llm.StreamLoggingMiddleware(logger)),
	)
	return client, modelID, nil
}

// printEvents writes model text to out and everything else to errOut. It
// drains events and reports whether an error event was seen.
func printEvents(out, errOut io.Writer, events <-chan agent.Event, thoughts bool) error {
	failed := false
	for ev := range events {
		switch ev.Kind {
		case agent.EventContent:
			fmt.Fprint(out, ev.Text)
		case agent.EventThought:
			if thoughts {
				fmt.Fprintf(errOut, "[thought] %s\n", ev.Text)
			}
		case agent.EventToolCallRequest:
			args, _ := json.Marshal(ev.ToolCall.Args)
			fmt.Fprintf(out, "\n[tool call] %s %s\n", ev.ToolCall.Name, args)
		case agent.EventToolCallResponse:
			if ev.ToolResult.Err != nil {
				fmt.Fprintf(out, "[tool error] %s: %v\n", ev.ToolResult.Name, ev.ToolResult.Err)
			} else if ev.ToolResult.ResultDisplay != "" {
				fmt.Fprintf(out, "[tool result] %s: %s\n", ev.ToolResult.Name, firstLine(ev.ToolResult.ResultDisplay))
			}
		case agent.EventChatCompressed:
			fmt.Fprintln(errOut, "[chat compressed]")
		case agent.EventLoopDetected:
			fmt.Fprintf(errOut, "[loop detected] %s\n", ev.Text)
		case agent.EventUserCancelled:
			fmt.Fprintln(errOut, "Request cancelled.")
		case agent.EventError:
			fmt.Fprintf(errOut, "Error: %v\n", ev.Err)
			failed = true
		}
	}
	fmt.Fprintln(out)
	if failed {
		return errRequestFailed
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
