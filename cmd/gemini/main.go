// Command gemini sends one prompt through the conversation engine and streams
// the answer to stdout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	model       string
	debug       bool
	targetDir   string
	allFiles    bool
	yolo        bool
	maxTurns    int
	provider    string
	showThought bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gemini [prompt...]",
	Short: "Send a prompt to Gemini with access to the files in the target directory",
	Long: `gemini runs one request through a tool-using conversation with the model.

The prompt is taken from the arguments, or read from stdin when no
arguments are given. Without --yolo only read-only tools are available.

Settings are read from ~/.gemini/settings.json and <target>/.gemini/settings.json,
memory from GEMINI.md files, and credentials from the environment or a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runPrompt,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&model, "model", "m", "", "model to use (default from GEMINI_MODEL or gemini-2.5-pro)")
	flags.BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	flags.StringVar(&targetDir, "target-dir", "", "workspace directory the tools operate on (default: current directory)")
	flags.BoolVarP(&allFiles, "all-files", "a", false, "include the content of every workspace file in the context")
	flags.BoolVar(&yolo, "yolo", false, "allow tools that modify files or run commands")
	flags.IntVar(&maxTurns, "max-turns", 0, "maximum turns per request, continuations included (default 100)")
	flags.StringVar(&provider, "provider", "", "backend: gemini, openai or anthropic (default gemini)")
	flags.BoolVar(&showThought, "show-thoughts", false, "print the model's thought summaries to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
