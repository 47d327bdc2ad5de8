package pipeline

import (
	"tonebridge/internal/domain"
)

// EventSink receives pipeline progress events. Data is a string for
// text events (phase, delta, done, error, retry) and a JSON-marshalable
// value otherwise; the transport layer serializes it.
type EventSink interface {
	Emit(event string, data any)
}

// NopSink discards every event. Used by the non-streaming path.
type NopSink struct{}

func (NopSink) Emit(string, any) {}

// Wire payload shapes. Field names are part of the SSE contract with
// the frontend and must stay camelCase.

type spanEvent struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
	Type        string `json:"type"`
}

type segmentEvent struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type labelEvent struct {
	SegmentID string `json:"segmentId"`
	Label     string `json:"label"`
	Tier      string `json:"tier"`
	Text      string `json:"text"`
}

type situationEvent struct {
	Facts  []situationFactEvent `json:"facts"`
	Intent string               `json:"intent"`
}

type situationFactEvent struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// processedSegmentEvent nulls the text of RED segments.
type processedSegmentEvent struct {
	ID    string  `json:"id"`
	Tier  string  `json:"tier"`
	Label string  `json:"label"`
	Text  *string `json:"text"`
}

type templateSelectedEvent struct {
	TemplateID         string `json:"templateId"`
	TemplateName       string `json:"templateName"`
	MetadataOverridden bool   `json:"metadataOverridden"`
}

type validationIssueEvent struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	MatchedText string `json:"matchedText"`
}

type statsEvent struct {
	SegmentCount           int    `json:"segmentCount"`
	GreenCount             int    `json:"greenCount"`
	YellowCount            int    `json:"yellowCount"`
	RedCount               int    `json:"redCount"`
	LockedSpanCount        int    `json:"lockedSpanCount"`
	RetryCount             int    `json:"retryCount"`
	IdentityBoosterFired   bool   `json:"identityBoosterFired"`
	SituationAnalysisFired bool   `json:"situationAnalysisFired"`
	MetadataOverridden     bool   `json:"metadataOverridden"`
	ChosenTemplateID       string `json:"chosenTemplateId"`
	LatencyMS              int64  `json:"latencyMs"`
	YellowRecoveryApplied  bool   `json:"yellowRecoveryApplied"`
	YellowUpgradeCount     int    `json:"yellowUpgradeCount"`
}

type usageEvent struct {
	AnalysisPromptTokens     int               `json:"analysisPromptTokens"`
	AnalysisCompletionTokens int               `json:"analysisCompletionTokens"`
	FinalPromptTokens        int               `json:"finalPromptTokens"`
	FinalCompletionTokens    int               `json:"finalCompletionTokens"`
	TotalCostUSD             float64           `json:"totalCostUsd"`
	Monthly                  monthlyProjection `json:"monthly"`
}

type monthlyProjection struct {
	MVP    float64 `json:"mvp"`
	Growth float64 `json:"growth"`
	Mature float64 `json:"mature"`
}

func emitSpans(sink EventSink, spans []domain.LockedSpan, maskedText string) {
	events := make([]spanEvent, 0, len(spans))
	for _, s := range spans {
		events = append(events, spanEvent{
			Placeholder: s.Placeholder,
			Original:    s.OriginalText,
			Type:        string(s.Type),
		})
	}
	sink.Emit("spans", events)
	sink.Emit("maskedText", maskedText)
}

func emitSegments(sink EventSink, segments []domain.Segment) {
	events := make([]segmentEvent, 0, len(segments))
	for _, s := range segments {
		events = append(events, segmentEvent{ID: s.ID, Text: s.Text, Start: s.Start, End: s.End})
	}
	sink.Emit("segments", events)
}

func emitLabels(sink EventSink, labeled []domain.LabeledSegment) {
	events := make([]labelEvent, 0, len(labeled))
	for _, ls := range labeled {
		events = append(events, labelEvent{
			SegmentID: ls.SegmentID,
			Label:     string(ls.Label),
			Tier:      string(ls.Label.Tier()),
			Text:      ls.Text,
		})
	}
	sink.Emit("labels", events)
}

func emitProcessedSegments(sink EventSink, labeled []domain.LabeledSegment) {
	events := make([]processedSegmentEvent, 0, len(labeled))
	for _, ls := range labeled {
		ev := processedSegmentEvent{
			ID:    ls.SegmentID,
			Tier:  string(ls.Label.Tier()),
			Label: string(ls.Label),
		}
		if ls.Label.Tier() != domain.TierRed {
			text := ls.Text
			ev.Text = &text
		}
		events = append(events, ev)
	}
	sink.Emit("processedSegments", events)
}

func emitValidationIssues(sink EventSink, issues []domain.ValidationIssue) {
	events := make([]validationIssueEvent, 0, len(issues))
	for _, i := range issues {
		events = append(events, validationIssueEvent{
			Type:        string(i.Type),
			Severity:    string(i.Severity),
			Message:     i.Message,
			MatchedText: i.MatchedText,
		})
	}
	sink.Emit("validationIssues", events)
}
