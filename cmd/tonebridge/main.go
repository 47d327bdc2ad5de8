// tonebridge rewrites blunt Korean workplace messages into polite,
// receiver-appropriate ones through a multi-model pipeline.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tonebridge/internal/config"
	"tonebridge/internal/llm"
	"tonebridge/internal/logging"
	"tonebridge/internal/pipeline"
	"tonebridge/internal/usage"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tonebridge",
	Short: "Korean tone rewriting service",
	Long: `tonebridge turns emotionally raw Korean drafts into messages that are
safe to send: facts and intent survive, grumbles and attacks do not.

Configuration comes from a YAML file (--config) plus TONEBRIDGE_*
environment overrides. At minimum a Gemini API key must be available.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, rewriteCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging.Debug); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// newClient routes a model name to its provider.
func newClient(cfg *config.Config, model string) llm.Client {
	timeout := cfg.CallTimeout()
	if strings.HasPrefix(model, "gemini-") {
		gc := llm.DefaultGeminiConfig(cfg.LLM.GeminiAPIKey, model)
		gc.Timeout = timeout
		return llm.NewGeminiClient(gc)
	}
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.OpenAIAPIKey,
		Model:   model,
		Timeout: timeout,
	})
}

func buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	analysis := newClient(cfg, cfg.LLM.AnalysisModel)
	fallback := newClient(cfg, cfg.LLM.FallbackModel)
	final := newClient(cfg, cfg.LLM.FinalModel)
	return pipeline.New(cfg, analysis, fallback, final, usage.NewTracker())
}

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
