// Package pipeline orchestrates the tone rewrite:
//
//	[parallel: situation analysis + the main chain]
//	normalize → extract+mask → identity boost? → segment → refine?
//	→ label → RED enforce → template select → context gate? → redact
//	→ join situation → final prompt → generate → unmask → validate
//	→ (one retry on failure)
//
// Base case is 3 model calls (situation + label + final); with every
// gate firing it reaches 6.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tonebridge/internal/config"
	"tonebridge/internal/domain"
	"tonebridge/internal/gating"
	"tonebridge/internal/label"
	"tonebridge/internal/llm"
	"tonebridge/internal/lockspan"
	"tonebridge/internal/logging"
	"tonebridge/internal/promptbuild"
	"tonebridge/internal/redact"
	"tonebridge/internal/segment"
	"tonebridge/internal/situation"
	"tonebridge/internal/template"
	"tonebridge/internal/textnorm"
	"tonebridge/internal/usage"
	"tonebridge/internal/validate"
)

// GenericErrorMessage is what clients see when a run fails for any
// reason other than input validation.
const GenericErrorMessage = "AI 변환 서비스에 일시적인 오류가 발생했습니다. 잠시 후 다시 시도해주세요."

// retryTemperature is used for the single validation retry.
const retryTemperature = 0.3

// Request is one rewrite job. Topic and Purpose are optional; when
// both are set the context gate is skipped.
type Request struct {
	Persona       domain.Persona
	Contexts      []domain.SituationContext
	Tone          domain.ToneLevel
	Text          string
	UserPrompt    string
	SenderInfo    string
	BoosterToggle bool
	Topic         domain.Topic
	Purpose       domain.Purpose
	Tier          domain.UserTier
}

// Pipeline wires the stages to their models. The analysis client
// serves the booster, refiner, situation and gate calls; the labeler
// keeps its own fallback; the final client streams the rewrite.
type Pipeline struct {
	cfg       *config.Config
	analysis  llm.Client
	final     llm.Client
	labeler   *label.Labeler
	segmenter *segment.Segmenter
	registry  *template.Registry
	tracker   *usage.Tracker
}

// New builds a Pipeline. fallback may equal analysis when only one
// provider is configured.
func New(cfg *config.Config, analysis, fallback, final llm.Client, tracker *usage.Tracker) *Pipeline {
	if tracker == nil {
		tracker = usage.NewTracker()
	}
	opts := segment.DefaultOptions()
	if cfg.Segmenter.MaxSegmentLength > 0 {
		opts.MaxSegmentLength = cfg.Segmenter.MaxSegmentLength
	}
	if cfg.Segmenter.DiscourseMarkerMinLength > 0 {
		opts.DiscourseMarkerMinLength = cfg.Segmenter.DiscourseMarkerMinLength
	}
	if cfg.Segmenter.EnumerationMinLength > 0 {
		opts.EnumerationMinLength = cfg.Segmenter.EnumerationMinLength
	}
	return &Pipeline{
		cfg:       cfg,
		analysis:  analysis,
		final:     final,
		labeler:   label.New(analysis, fallback),
		segmenter: segment.New(opts),
		registry:  template.NewRegistry(),
		tracker:   tracker,
	}
}

// Tracker exposes the usage tracker for the server's usage endpoint.
func (p *Pipeline) Tracker() *usage.Tracker { return p.tracker }

// CheckLength enforces the tier input limit before a run starts.
func (p *Pipeline) CheckLength(req Request) error {
	limit := p.cfg.MaxTextLength(string(req.Tier))
	if utf8.RuneCountInString(req.Text) > limit {
		return fmt.Errorf("최대 %d자까지 입력할 수 있습니다.", limit)
	}
	return nil
}

func (p *Pipeline) maxTokens(tier domain.UserTier) int {
	if tier == domain.TierPaid {
		return p.cfg.LLM.MaxTokensPaid
	}
	return p.cfg.LLM.MaxTokens
}

// analysisResult is everything the final prompt needs from the
// analysis phase.
type analysisResult struct {
	maskedText string
	spans      []domain.LockedSpan
	segments   []domain.Segment
	labeled    []domain.LabeledSegment
	redaction  redact.Result
	situation  situation.Result
	summary    string

	promptTokens     int
	completionTokens int

	boosterFired       bool
	situationFired     bool
	metadataOverridden bool
	yellowRecovery     bool
	yellowUpgrades     int

	selection template.SelectionResult
}

// analyze runs every stage up to redaction and the situation join,
// emitting progress events along the way.
func (p *Pipeline) analyze(ctx context.Context, req Request, sink EventSink) (analysisResult, error) {
	log := logging.For(logging.CategoryPipeline)
	var res analysisResult

	sink.Emit("phase", "normalizing")
	normalized := textnorm.Normalize(req.Text)

	sink.Emit("phase", "extracting")
	spans := lockspan.Extract(normalized)
	masked := lockspan.Mask(normalized, spans)
	emitSpans(sink, spans, masked)
	if len(spans) > 0 {
		log.Info("extracted locked spans", zap.Int("count", len(spans)))
	}

	// The situation call only needs the masked text, so it runs in
	// parallel with everything up to the join after redaction. It is
	// forked before the booster on purpose: booster placeholders
	// would only hide names the analyzer may cite as sources.
	sitDecision := gating.SituationAnalysis()
	var sitResult situation.Result
	g, gctx := errgroup.WithContext(ctx)
	if sitDecision.Fire {
		sitMasked := masked
		g.Go(func() error {
			sitResult = situation.Analyze(gctx, p.analysis, situation.Input{
				Persona:    req.Persona,
				Contexts:   req.Contexts,
				Tone:       req.Tone,
				MaskedText: sitMasked,
				UserPrompt: req.UserPrompt,
				SenderInfo: req.SenderInfo,
			})
			return nil
		})
	}

	boostDecision := gating.IdentityBooster(req.BoosterToggle, req.Persona, spans, normalized)
	if boostDecision.Fire {
		sink.Emit("phase", "identity_boosting")
		boost, err := lockspan.BoostIdentity(ctx, p.analysis, normalized, spans, masked)
		if err != nil {
			log.Warn("identity booster failed, keeping regex spans", zap.Error(err))
		} else {
			res.promptTokens += boost.PromptTokens
			res.completionTokens += boost.CompletionTokens
			p.tracker.Record(p.analysis.Model(), "identity_boost", boost.PromptTokens, boost.CompletionTokens, 0)
			res.boosterFired = true
			if len(boost.ExtraSpans) > 0 {
				spans = lockspan.MergeSpans(spans, boost.ExtraSpans)
				masked = lockspan.Mask(normalized, spans)
				emitSpans(sink, spans, masked)
			}
		}
	} else {
		sink.Emit("phase", "identity_skipped")
	}

	sink.Emit("phase", "segmenting")
	segments := p.segmenter.Segment(masked)

	refineDecision := gating.SegmentRefine(segments, p.cfg.Segmenter.RefineMinLength)
	if refineDecision.Fire {
		sink.Emit("phase", "segment_refining")
		refined := segment.Refine(ctx, p.analysis, segments, masked, p.cfg.Segmenter.RefineMinLength)
		segments = refined.Segments
		res.promptTokens += refined.PromptTokens
		res.completionTokens += refined.CompletionTokens
		if refined.PromptTokens > 0 {
			p.tracker.Record(p.analysis.Model(), "segment_refine", refined.PromptTokens, refined.CompletionTokens, 0)
		}
	} else {
		sink.Emit("phase", "segment_refining_skipped")
	}
	emitSegments(sink, segments)

	sink.Emit("phase", "labeling")
	labelRes, err := p.labeler.Label(ctx, label.Input{
		Persona:    req.Persona,
		Contexts:   req.Contexts,
		Tone:       req.Tone,
		UserPrompt: req.UserPrompt,
		SenderInfo: req.SenderInfo,
		Segments:   segments,
		MaskedText: masked,
	})
	if err != nil {
		return res, fmt.Errorf("structure labeling: %w", err)
	}
	res.promptTokens += labelRes.PromptTokens
	res.completionTokens += labelRes.CompletionTokens
	p.tracker.Record(p.analysis.Model(), "label", labelRes.PromptTokens, labelRes.CompletionTokens, 0)

	labeled := label.Enforce(labelRes.Labeled)
	emitLabels(sink, labeled)

	sink.Emit("phase", "template_selecting")
	stats := domain.LabelStatsFromSegments(labeled)
	selection := template.Select(p.registry, req.Persona, req.Contexts, req.Topic, req.Purpose, stats, masked)

	metadataPinned := req.Topic != "" && req.Purpose != ""
	gateDecision := gating.ContextGate(metadataPinned)
	if gateDecision.Fire {
		sink.Emit("phase", "context_gating")
		gate := gating.EvaluateContextGate(ctx, p.analysis, gating.GateInput{
			Persona:    req.Persona,
			Contexts:   req.Contexts,
			Topic:      req.Topic,
			Purpose:    req.Purpose,
			Tone:       req.Tone,
			MaskedText: masked,
			Labeled:    labeled,
		})
		res.promptTokens += gate.PromptTokens
		res.completionTokens += gate.CompletionTokens
		if gate.PromptTokens > 0 {
			p.tracker.Record(p.analysis.Model(), "context_gate", gate.PromptTokens, gate.CompletionTokens, 0)
		}
		if gate.MeetsThreshold() {
			topic := req.Topic
			if gate.InferredTopic != "" {
				topic = gate.InferredTopic
			}
			purpose := req.Purpose
			if gate.InferredPurpose != "" {
				purpose = gate.InferredPurpose
			}
			contexts := req.Contexts
			if gate.InferredPrimaryContext != "" {
				contexts = []domain.SituationContext{gate.InferredPrimaryContext}
			}
			overridden := template.Select(p.registry, req.Persona, contexts, topic, purpose, stats, masked)
			log.Info("context gate overrode template",
				zap.String("from", selection.Template.ID),
				zap.String("to", overridden.Template.ID),
				zap.Float64("confidence", gate.Confidence))
			selection = overridden
			res.metadataOverridden = true
		}
	} else {
		sink.Emit("phase", "context_gating_skipped")
	}
	sink.Emit("templateSelected", templateSelectedEvent{
		TemplateID:         selection.Template.ID,
		TemplateName:       selection.Template.Name,
		MetadataOverridden: res.metadataOverridden,
	})

	sink.Emit("phase", "redacting")
	redaction := redact.Process(labeled)
	emitProcessedSegments(sink, labeled)

	if sitDecision.Fire {
		sink.Emit("phase", "situation_analyzing")
		if err := g.Wait(); err != nil {
			return res, fmt.Errorf("situation analysis: %w", err)
		}
		sitResult = situation.FilterRedFacts(sitResult, masked, labeled)
		res.promptTokens += sitResult.PromptTokens
		res.completionTokens += sitResult.CompletionTokens
		if sitResult.PromptTokens > 0 {
			p.tracker.Record(p.analysis.Model(), "situation", sitResult.PromptTokens, sitResult.CompletionTokens, 0)
		}
		if sitResult.Fired {
			res.situationFired = true
			facts := make([]situationFactEvent, 0, len(sitResult.Facts))
			for _, f := range sitResult.Facts {
				facts = append(facts, situationFactEvent{Content: f.Content, Source: f.Source})
			}
			sink.Emit("situationAnalysis", situationEvent{Facts: facts, Intent: sitResult.Intent})
		}
	} else {
		sink.Emit("phase", "situation_skipped")
	}

	res.maskedText = masked
	res.spans = spans
	res.segments = segments
	res.labeled = labeled
	res.redaction = redaction
	res.situation = sitResult
	res.summary = labelRes.Summary
	res.yellowRecovery = labelRes.YellowRecoveryApplied
	res.yellowUpgrades = labelRes.YellowUpgradeCount
	res.selection = selection

	green, yellow, red := tierCounts(labeled)
	log.Info("analysis complete",
		zap.Int("segments", len(segments)),
		zap.Int("green", green),
		zap.Int("yellow", yellow),
		zap.Int("red", red),
		zap.Bool("booster", res.boosterFired),
		zap.Bool("situation", res.situationFired),
		zap.String("template", selection.Template.ID),
		zap.Bool("overridden", res.metadataOverridden))

	return res, nil
}

// finalPrompt renders the system/user pair for the final model.
func (p *Pipeline) finalPrompt(req Request, res analysisResult) (system, user string) {
	ordered := promptbuild.BuildOrderedSegments(res.labeled)

	var analysis *promptbuild.AnalysisBlock
	if res.situationFired && (len(res.situation.Facts) > 0 || res.situation.Intent != "") {
		block := promptbuild.AnalysisBlock{Intent: res.situation.Intent}
		for _, f := range res.situation.Facts {
			block.Facts = append(block.Facts, promptbuild.AnalysisFact{Content: f.Content, Source: f.Source})
		}
		analysis = &block
	}

	system = promptbuild.BuildFinalSystemPrompt(req.Persona, req.Contexts, req.Tone, res.selection)
	user = promptbuild.BuildFinalUserMessage(req.Persona, req.Contexts, req.Tone, req.SenderInfo,
		ordered, res.spans, analysis, res.summary, res.selection)
	return system, user
}

func (p *Pipeline) validateOutput(req Request, res analysisResult, gen generation) domain.ValidationResult {
	var yellowTexts []string
	for _, ls := range res.labeled {
		if ls.Label.Tier() == domain.TierYellow {
			yellowTexts = append(yellowTexts, ls.Text)
		}
	}
	return validate.Validate(validate.Input{
		FinalText:          gen.Unmasked,
		OriginalText:       req.Text,
		RawLLMOutput:       gen.Raw,
		Persona:            req.Persona,
		Spans:              res.spans,
		RedactionMap:       res.redaction.RedactionMap,
		YellowSegmentTexts: yellowTexts,
		EffectiveSections:  res.selection.EffectiveSections,
		Labeled:            res.labeled,
	})
}

// errorHint appends validation messages to the retry user prompt.
func errorHint(messages []string, issues []domain.ValidationIssue, spans []domain.LockedSpan) string {
	return "\n\n[시스템 검증 오류] " + strings.Join(messages, "; ") +
		validate.BuildLockedSpanRetryHint(issues, spans)
}

func tierCounts(labeled []domain.LabeledSegment) (green, yellow, red int) {
	for _, ls := range labeled {
		switch ls.Label.Tier() {
		case domain.TierGreen:
			green++
		case domain.TierYellow:
			yellow++
		case domain.TierRed:
			red++
		}
	}
	return green, yellow, red
}
