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
)

// retryableWarnings are warning types worth a second pass when the
// output is not being streamed.
var retryableWarnings = map[domain.ValidationIssueType]bool{
	domain.IssueCoreNumberMissing:    true,
	domain.IssueCoreDateMissing:      true,
	domain.IssueSoftenContentDropped: true,
	domain.IssueSectionS2Missing:     true,
}

// warningRetryHint steers the retry toward the dropped content.
const warningRetryHint = "\n\n[검증 재시도 지침] 원문에 있던 숫자/날짜는 모두 유지하세요. " +
	"SOFTEN 대상 내용을 삭제하지 말고 재작성하세요. " +
	"S2(내부 확인/점검) 섹션이 있으면 반드시 포함하세요."

// Result is a finished non-streaming run.
type Result struct {
	TransformedText string
	Issues          []domain.ValidationIssue
	Stats           domain.PipelineStats
}

// Transform runs the pipeline without streaming. Unlike Run it also
// retries on retryable warnings, since no deltas have reached the
// client yet.
func (p *Pipeline) Transform(ctx context.Context, req Request) (Result, error) {
	log := logging.For(logging.CategoryPipeline)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout())
	defer cancel()

	if err := p.CheckLength(req); err != nil {
		return Result{}, err
	}

	res, err := p.analyze(ctx, req, NopSink{})
	if err != nil {
		return Result{}, err
	}

	system, user := p.finalPrompt(req, res)
	maxTokens := p.maxTokens(req.Tier)

	gen, err := p.completeFinal(ctx, system, user, p.cfg.LLM.Temperature, maxTokens, res.spans)
	if err != nil {
		return Result{}, err
	}
	validation := p.validateOutput(req, res, gen)

	retryCount := 0
	if shouldRetry(validation) {
		var messages []string
		for _, issue := range validation.Issues {
			if issue.Severity == domain.SeverityError || retryableWarnings[issue.Type] {
				messages = append(messages, issue.Message)
			}
		}
		log.Warn("validation issues, retrying once", zap.Strings("issues", messages))
		retryCount = 1

		retryUser := user + errorHint(messages, validation.Issues, res.spans)
		retryGen, err := p.completeFinal(ctx, system+warningRetryHint, retryUser, retryTemperature, maxTokens, res.spans)
		if err != nil {
			return Result{}, err
		}
		gen = retryGen
		validation = p.validateOutput(req, res, gen)
	}
	p.tracker.Record(p.final.Model(), "final", gen.PromptTokens, gen.CompletionTokens, gen.CachedTokens)

	green, yellow, red := tierCounts(res.labeled)
	return Result{
		TransformedText: gen.Unmasked,
		Issues:          validation.Issues,
		Stats: domain.PipelineStats{
			AnalysisPromptTokens:     res.promptTokens,
			AnalysisCompletionTokens: res.completionTokens,
			FinalPromptTokens:        gen.PromptTokens,
			FinalCompletionTokens:    gen.CompletionTokens,
			SegmentCount:             len(res.segments),
			GreenCount:               green,
			YellowCount:              yellow,
			RedCount:                 red,
			LockedSpanCount:          len(res.spans),
			RetryCount:               retryCount,
			IdentityBoosterFired:     res.boosterFired,
			SituationAnalysisFired:   res.situationFired,
			MetadataOverridden:       res.metadataOverridden,
			ChosenTemplateID:         res.selection.Template.ID,
			TotalLatencyMS:           time.Since(start).Milliseconds(),
		},
	}, nil
}

func shouldRetry(validation domain.ValidationResult) bool {
	if !validation.Passed {
		return true
	}
	for _, issue := range validation.Issues {
		if issue.Severity == domain.SeverityWarning && retryableWarnings[issue.Type] {
			return true
		}
	}
	return false
}

func (p *Pipeline) completeFinal(
	ctx context.Context,
	system, user string,
	temperature float64,
	maxTokens int,
	spans []domain.LockedSpan,
) (generation, error) {
	res, err := p.final.Complete(ctx, llm.Request{
		System:      system,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return generation{}, err
	}
	raw := strings.TrimSpace(res.Content)
	unmasked := lockspan.Unmask(raw, spans)
	return generation{
		Unmasked:         unmasked.Text,
		Raw:              raw,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		CachedTokens:     res.CachedTokens,
	}, nil
}
