package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tonebridge/internal/domain"
	"tonebridge/internal/pipeline"
)

var (
	rewritePersona  string
	rewriteContexts []string
	rewriteTone     string
	rewriteTopic    string
	rewritePurpose  string
	rewriteSender   string
	rewritePrompt   string
	rewriteTier     string
	rewriteBoost    bool
)

// jsonLineSink prints one JSON object per event, mirroring the SSE
// stream for shell consumption.
type jsonLineSink struct {
	enc *json.Encoder
}

func (s *jsonLineSink) Emit(event string, data any) {
	_ = s.enc.Encode(map[string]any{"event": event, "data": data})
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Rewrite a message read from stdin",
	Long: `Reads the draft from stdin, runs the pipeline, and prints every
pipeline event as a JSON line. The final text is the "done" event.

  echo "보고서 왜 아직도 안 주시나요" | tonebridge rewrite --persona BOSS --context URGING`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return fmt.Errorf("no input text on stdin")
		}

		var contexts []domain.SituationContext
		for _, raw := range rewriteContexts {
			sc, ok := domain.ParseSituationContext(raw)
			if !ok {
				return fmt.Errorf("unknown context: %q", raw)
			}
			contexts = append(contexts, sc)
		}
		if len(contexts) == 0 {
			return fmt.Errorf("at least one --context is required")
		}

		req := pipeline.Request{
			Persona:       domain.ParsePersona(rewritePersona),
			Contexts:      contexts,
			Tone:          domain.ParseToneLevel(rewriteTone),
			Text:          text,
			UserPrompt:    rewritePrompt,
			SenderInfo:    rewriteSender,
			BoosterToggle: rewriteBoost,
			Tier:          domain.TierPaid,
		}
		if strings.EqualFold(rewriteTier, string(domain.TierFree)) {
			req.Tier = domain.TierFree
		}
		if t, ok := domain.ParseTopic(rewriteTopic); ok {
			req.Topic = t
		}
		if p, ok := domain.ParsePurpose(rewritePurpose); ok {
			req.Purpose = p
		}

		sink := &jsonLineSink{enc: json.NewEncoder(os.Stdout)}
		return buildPipeline(cfg).Run(cmd.Context(), req, sink)
	},
}

func init() {
	rewriteCmd.Flags().StringVar(&rewritePersona, "persona", "OTHER", "receiver persona (BOSS, CLIENT, PARENT, PROFESSOR, OFFICIAL, OTHER)")
	rewriteCmd.Flags().StringSliceVar(&rewriteContexts, "context", nil, "situation contexts, repeatable (REQUEST, APOLOGY, COMPLAINT, ...)")
	rewriteCmd.Flags().StringVar(&rewriteTone, "tone", "POLITE", "tone level (NEUTRAL, POLITE, VERY_POLITE)")
	rewriteCmd.Flags().StringVar(&rewriteTopic, "topic", "", "topic hint (optional)")
	rewriteCmd.Flags().StringVar(&rewritePurpose, "purpose", "", "purpose hint (optional)")
	rewriteCmd.Flags().StringVar(&rewriteSender, "sender", "", "sender description shown to the model")
	rewriteCmd.Flags().StringVar(&rewritePrompt, "prompt", "", "extra user guidance for the rewrite")
	rewriteCmd.Flags().StringVar(&rewriteTier, "tier", "PAID", "user tier (FREE, PAID)")
	rewriteCmd.Flags().BoolVar(&rewriteBoost, "toggle-boost", false, "force the identity lock booster on")
}
