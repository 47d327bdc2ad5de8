package domain

// LockedSpan is a factual span that must survive rewriting verbatim.
// Positions are byte offsets into the normalized source text.
type LockedSpan struct {
	Index        int
	OriginalText string
	Placeholder  string
	Type         SpanType
	StartPos     int
	EndPos       int
}

// Segment is a meaning unit of the masked text. Positions are byte
// offsets into the masked text.
type Segment struct {
	ID    string
	Text  string
	Start int
	End   int
}

// LabeledSegment pairs a segment with its classification.
type LabeledSegment struct {
	SegmentID string
	Label     SegmentLabel
	Text      string
	Start     int
	End       int
}

// ValidationIssue is a single finding of the output validator.
type ValidationIssue struct {
	Type        ValidationIssueType
	Severity    Severity
	Message     string
	MatchedText string
}

// ValidationResult is the aggregate verdict over all checks.
// Passed is false only when at least one ERROR-severity issue exists.
type ValidationResult struct {
	Passed bool
	Issues []ValidationIssue
}

// HasErrors reports whether any issue is an error.
func (r ValidationResult) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity issues.
func (r ValidationResult) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Warnings returns the warning-severity issues.
func (r ValidationResult) Warnings() []ValidationIssue {
	var out []ValidationIssue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

// LabelStats summarizes a labeled segment list for template selection
// and gating decisions.
type LabelStats struct {
	GreenCount  int
	YellowCount int
	RedCount    int

	HasAccountability    bool
	HasNegativeFeedback  bool
	HasEmotional         bool
	HasSelfJustification bool
	HasAggression        bool
}

// LabelStatsFromSegments tallies tiers and the flag labels.
func LabelStatsFromSegments(segments []LabeledSegment) LabelStats {
	var s LabelStats
	for _, seg := range segments {
		switch seg.Label.Tier() {
		case TierGreen:
			s.GreenCount++
		case TierYellow:
			s.YellowCount++
		case TierRed:
			s.RedCount++
		}
		switch seg.Label {
		case LabelAccountability:
			s.HasAccountability = true
		case LabelNegativeFeedback:
			s.HasNegativeFeedback = true
		case LabelEmotional:
			s.HasEmotional = true
		case LabelSelfJustification:
			s.HasSelfJustification = true
		case LabelAggression:
			s.HasAggression = true
		}
	}
	return s
}

// PipelineStats is the summary emitted in the stats event after a run.
type PipelineStats struct {
	AnalysisPromptTokens     int
	AnalysisCompletionTokens int
	FinalPromptTokens        int
	FinalCompletionTokens    int

	SegmentCount    int
	GreenCount      int
	YellowCount     int
	RedCount        int
	LockedSpanCount int

	RetryCount             int
	IdentityBoosterFired   bool
	SituationAnalysisFired bool
	MetadataOverridden     bool
	ChosenTemplateID       string
	TotalLatencyMS         int64
}
