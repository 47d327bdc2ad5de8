package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/lockspan"
	"tonebridge/internal/logging"
	"tonebridge/internal/usage"
)

// generation is one finished final-model pass.
type generation struct {
	Unmasked         string
	Raw              string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Run drives the full pipeline and streams events to sink. The retry
// on validation failure fires only for ERROR issues: deltas of the
// first pass have already been sent, so warning-level rewrites would
// only confuse the client.
func (p *Pipeline) Run(ctx context.Context, req Request, sink EventSink) error {
	log := logging.For(logging.CategoryPipeline)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout())
	defer cancel()

	if err := p.CheckLength(req); err != nil {
		sink.Emit("error", err.Error())
		return err
	}

	res, err := p.analyze(ctx, req, sink)
	if err != nil {
		log.Error("analysis phase failed", zap.Error(err))
		sink.Emit("error", GenericErrorMessage)
		return err
	}

	system, user := p.finalPrompt(req, res)
	maxTokens := p.maxTokens(req.Tier)

	sink.Emit("phase", "generating")
	gen, err := p.streamFinal(ctx, sink, system, user, p.cfg.LLM.Temperature, maxTokens, res.spans)
	if err != nil {
		log.Error("final generation failed", zap.Error(err))
		sink.Emit("error", GenericErrorMessage)
		return err
	}

	sink.Emit("phase", "validating")
	validation := p.validateOutput(req, res, gen)

	retryCount := 0
	if !validation.Passed {
		var messages []string
		for _, issue := range validation.Errors() {
			messages = append(messages, issue.Message)
		}
		log.Warn("validation errors, retrying once", zap.Strings("errors", messages))
		retryCount = 1
		sink.Emit("retry", "validation_failed")

		retryUser := user + errorHint(messages, validation.Issues, res.spans)
		retryGen, err := p.streamFinal(ctx, sink, system, retryUser, retryTemperature, maxTokens, res.spans)
		if err != nil {
			log.Error("retry generation failed", zap.Error(err))
			sink.Emit("error", GenericErrorMessage)
			return err
		}
		gen = retryGen
		validation = p.validateOutput(req, res, gen)
	}
	p.tracker.Record(p.final.Model(), "final", gen.PromptTokens, gen.CompletionTokens, gen.CachedTokens)

	emitValidationIssues(sink, validation.Issues)
	sink.Emit("phase", "complete")

	green, yellow, red := tierCounts(res.labeled)
	sink.Emit("stats", statsEvent{
		SegmentCount:           len(res.segments),
		GreenCount:             green,
		YellowCount:            yellow,
		RedCount:               red,
		LockedSpanCount:        len(res.spans),
		RetryCount:             retryCount,
		IdentityBoosterFired:   res.boosterFired,
		SituationAnalysisFired: res.situationFired,
		MetadataOverridden:     res.metadataOverridden,
		ChosenTemplateID:       res.selection.Template.ID,
		LatencyMS:              time.Since(start).Milliseconds(),
		YellowRecoveryApplied:  res.yellowRecovery,
		YellowUpgradeCount:     res.yellowUpgrades,
	})

	totalCost := usage.CostUSD(res.promptTokens, res.completionTokens) +
		usage.CostUSD(gen.PromptTokens, gen.CompletionTokens)
	sink.Emit("usage", usageEvent{
		AnalysisPromptTokens:     res.promptTokens,
		AnalysisCompletionTokens: res.completionTokens,
		FinalPromptTokens:        gen.PromptTokens,
		FinalCompletionTokens:    gen.CompletionTokens,
		TotalCostUSD:             totalCost,
		Monthly: monthlyProjection{
			MVP:    totalCost * usage.MonthlyRequestsMVP,
			Growth: totalCost * usage.MonthlyRequestsGrowth,
			Mature: totalCost * usage.MonthlyRequestsMature,
		},
	})

	sink.Emit("done", gen.Unmasked)
	return nil
}

// streamFinal forwards deltas to the sink as they arrive, then
// unmasks the assembled output.
func (p *Pipeline) streamFinal(
	ctx context.Context,
	sink EventSink,
	system, user string,
	temperature float64,
	maxTokens int,
	spans []domain.LockedSpan,
) (generation, error) {
	deltas, ends := p.final.CompleteStream(ctx, llm.Request{
		System:      system,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})

	var sb strings.Builder
	for delta := range deltas {
		sb.WriteString(delta)
		sink.Emit("delta", delta)
	}
	end := <-ends
	if end.Err != nil {
		return generation{}, end.Err
	}

	raw := strings.TrimSpace(sb.String())
	unmasked := lockspan.Unmask(raw, spans)
	return generation{
		Unmasked:         unmasked.Text,
		Raw:              raw,
		PromptTokens:     end.PromptTokens,
		CompletionTokens: end.CompletionTokens,
		CachedTokens:     end.CachedTokens,
	}, nil
}
