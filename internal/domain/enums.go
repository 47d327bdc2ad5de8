// Package domain holds the shared value types of the rewrite pipeline:
// locked spans, segments, labels, validation issues and the request
// metadata enums (persona, situation context, tone level).
package domain

import "strings"

// SpanType identifies which extractor pattern produced a locked span.
type SpanType string

const (
	SpanEmail       SpanType = "EMAIL"
	SpanURL         SpanType = "URL"
	SpanPhone       SpanType = "PHONE"
	SpanAccount     SpanType = "ACCOUNT"
	SpanDate        SpanType = "DATE"
	SpanTime        SpanType = "TIME"
	SpanTimeHHMM    SpanType = "TIME_HH_MM"
	SpanMoney       SpanType = "MONEY"
	SpanUnitNumber  SpanType = "UNIT_NUMBER"
	SpanLargeNumber SpanType = "LARGE_NUMBER"
	SpanUUID        SpanType = "UUID"
	SpanFilePath    SpanType = "FILE_PATH"
	SpanIssueTicket SpanType = "ISSUE_TICKET"
	SpanVersion     SpanType = "VERSION"
	SpanQuotedText  SpanType = "QUOTED_TEXT"
	SpanIdentifier  SpanType = "IDENTIFIER"
	SpanHashCommit  SpanType = "HASH_COMMIT"
	// SpanSemantic marks LLM-detected names from the identity booster.
	SpanSemantic SpanType = "SEMANTIC"
)

var placeholderPrefixes = map[SpanType]string{
	SpanEmail:       "EMAIL",
	SpanURL:         "URL",
	SpanPhone:       "PHONE",
	SpanAccount:     "ACCOUNT",
	SpanDate:        "DATE",
	SpanTime:        "TIME",
	SpanTimeHHMM:    "TIME",
	SpanMoney:       "MONEY",
	SpanUnitNumber:  "NUMBER",
	SpanLargeNumber: "NUMBER",
	SpanUUID:        "UUID",
	SpanFilePath:    "FILE",
	SpanIssueTicket: "TICKET",
	SpanVersion:     "VERSION",
	SpanQuotedText:  "QUOTE",
	SpanIdentifier:  "ID",
	SpanHashCommit:  "HASH",
	SpanSemantic:    "NAME",
}

// PlaceholderPrefix returns the prefix used inside {{PREFIX_N}} placeholders.
func (t SpanType) PlaceholderPrefix() string {
	if p, ok := placeholderPrefixes[t]; ok {
		return p
	}
	return string(t)
}

// Tier classifies a segment label into the rewrite strategy it gets.
type Tier string

const (
	TierGreen  Tier = "GREEN"  // preserve: style polish only
	TierYellow Tier = "YELLOW" // modify: content kept, delivery softened
	TierRed    Tier = "RED"    // remove: content excluded from the rewrite
)

// SegmentLabel is the 14-way classification assigned by the labeler.
type SegmentLabel string

const (
	LabelCoreFact   SegmentLabel = "CORE_FACT"
	LabelCoreIntent SegmentLabel = "CORE_INTENT"
	LabelRequest    SegmentLabel = "REQUEST"
	LabelApology    SegmentLabel = "APOLOGY"
	LabelCourtesy   SegmentLabel = "COURTESY"

	LabelAccountability    SegmentLabel = "ACCOUNTABILITY"
	LabelSelfJustification SegmentLabel = "SELF_JUSTIFICATION"
	LabelNegativeFeedback  SegmentLabel = "NEGATIVE_FEEDBACK"
	LabelEmotional         SegmentLabel = "EMOTIONAL"
	LabelExcessDetail      SegmentLabel = "EXCESS_DETAIL"

	LabelAggression     SegmentLabel = "AGGRESSION"
	LabelPersonalAttack SegmentLabel = "PERSONAL_ATTACK"
	LabelPrivateTMI     SegmentLabel = "PRIVATE_TMI"
	LabelPureGrumble    SegmentLabel = "PURE_GRUMBLE"
)

var labelTiers = map[SegmentLabel]Tier{
	LabelCoreFact:   TierGreen,
	LabelCoreIntent: TierGreen,
	LabelRequest:    TierGreen,
	LabelApology:    TierGreen,
	LabelCourtesy:   TierGreen,

	LabelAccountability:    TierYellow,
	LabelSelfJustification: TierYellow,
	LabelNegativeFeedback:  TierYellow,
	LabelEmotional:         TierYellow,
	LabelExcessDetail:      TierYellow,

	LabelAggression:     TierRed,
	LabelPersonalAttack: TierRed,
	LabelPrivateTMI:     TierRed,
	LabelPureGrumble:    TierRed,
}

// Tier returns the strategy tier of the label. Unknown labels are GREEN.
func (l SegmentLabel) Tier() Tier {
	if t, ok := labelTiers[l]; ok {
		return t
	}
	return TierGreen
}

// Valid reports whether l is one of the 14 known labels.
func (l SegmentLabel) Valid() bool {
	_, ok := labelTiers[l]
	return ok
}

// legacyLabels maps label names from older labeler prompts to the current set.
var legacyLabels = map[string]SegmentLabel{
	"BLAME":        LabelAccountability,
	"GRUMBLE":      LabelPureGrumble,
	"SELF_DEFENSE": LabelSelfJustification,

	"ACCOUNTABILITY_FACT":     LabelAccountability,
	"ACCOUNTABILITY_JUDGMENT": LabelAccountability,
	"SELF_CONTEXT":            LabelSelfJustification,
	"SELF_DEFENSIVE":          LabelSelfJustification,
	"SPECULATION":             LabelExcessDetail,
	"OVER_EXPLANATION":        LabelExcessDetail,
}

// ParseSegmentLabel normalizes a raw labeler token to a known label.
// Legacy names are migrated and anything unrecognized falls back to COURTESY.
func ParseSegmentLabel(raw string) SegmentLabel {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if l := SegmentLabel(name); l.Valid() {
		return l
	}
	if l, ok := legacyLabels[name]; ok {
		return l
	}
	return LabelCourtesy
}

// Persona is the receiver of the rewritten message.
type Persona string

const (
	PersonaBoss      Persona = "BOSS"
	PersonaClient    Persona = "CLIENT"
	PersonaParent    Persona = "PARENT"
	PersonaProfessor Persona = "PROFESSOR"
	PersonaOfficial  Persona = "OFFICIAL"
	PersonaOther     Persona = "OTHER"
)

// Personas lists all known personas.
var Personas = []Persona{
	PersonaBoss, PersonaClient, PersonaParent,
	PersonaProfessor, PersonaOfficial, PersonaOther,
}

// ParsePersona returns the persona for raw, defaulting to OTHER.
func ParsePersona(raw string) Persona {
	p := Persona(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Personas {
		if p == known {
			return p
		}
	}
	return PersonaOther
}

// SituationContext is the communicative situation the message lives in.
type SituationContext string

const (
	ContextRequest        SituationContext = "REQUEST"
	ContextScheduleDelay  SituationContext = "SCHEDULE_DELAY"
	ContextUrging         SituationContext = "URGING"
	ContextRejection      SituationContext = "REJECTION"
	ContextApology        SituationContext = "APOLOGY"
	ContextComplaint      SituationContext = "COMPLAINT"
	ContextAnnouncement   SituationContext = "ANNOUNCEMENT"
	ContextFeedback       SituationContext = "FEEDBACK"
	ContextBilling        SituationContext = "BILLING"
	ContextSupport        SituationContext = "SUPPORT"
	ContextContract       SituationContext = "CONTRACT"
	ContextRecruiting     SituationContext = "RECRUITING"
	ContextCivilComplaint SituationContext = "CIVIL_COMPLAINT"
	ContextGratitude      SituationContext = "GRATITUDE"
)

// SituationContexts lists all known situation contexts.
var SituationContexts = []SituationContext{
	ContextRequest, ContextScheduleDelay, ContextUrging, ContextRejection,
	ContextApology, ContextComplaint, ContextAnnouncement, ContextFeedback,
	ContextBilling, ContextSupport, ContextContract, ContextRecruiting,
	ContextCivilComplaint, ContextGratitude,
}

// ParseSituationContext returns the context for raw and whether it is known.
func ParseSituationContext(raw string) (SituationContext, bool) {
	c := SituationContext(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range SituationContexts {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// ToneLevel controls how formal the rewritten message is.
type ToneLevel string

const (
	ToneNeutral    ToneLevel = "NEUTRAL"
	TonePolite     ToneLevel = "POLITE"
	ToneVeryPolite ToneLevel = "VERY_POLITE"
)

// ParseToneLevel returns the tone for raw, defaulting to POLITE.
func ParseToneLevel(raw string) ToneLevel {
	switch ToneLevel(strings.ToUpper(strings.TrimSpace(raw))) {
	case ToneNeutral:
		return ToneNeutral
	case ToneVeryPolite:
		return ToneVeryPolite
	default:
		return TonePolite
	}
}

// Topic is the coarse subject matter, used for template selection.
type Topic string

const (
	TopicRefundCancel        Topic = "REFUND_CANCEL"
	TopicOutageError         Topic = "OUTAGE_ERROR"
	TopicAccountPermission   Topic = "ACCOUNT_PERMISSION"
	TopicDataFile            Topic = "DATA_FILE"
	TopicScheduleDeadline    Topic = "SCHEDULE_DEADLINE"
	TopicCostBilling         Topic = "COST_BILLING"
	TopicContractTerms       Topic = "CONTRACT_TERMS"
	TopicHREvaluation        Topic = "HR_EVALUATION"
	TopicAcademicGrade       Topic = "ACADEMIC_GRADE"
	TopicComplaintRegulation Topic = "COMPLAINT_REGULATION"
	TopicOther               Topic = "OTHER"
)

// Topics lists all known topics.
var Topics = []Topic{
	TopicRefundCancel, TopicOutageError, TopicAccountPermission,
	TopicDataFile, TopicScheduleDeadline, TopicCostBilling,
	TopicContractTerms, TopicHREvaluation, TopicAcademicGrade,
	TopicComplaintRegulation, TopicOther,
}

// ParseTopic returns the topic for raw and whether it is known.
func ParseTopic(raw string) (Topic, bool) {
	t := Topic(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Topics {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Purpose is the sender's goal, used for template selection.
type Purpose string

const (
	PurposeInfoDelivery             Purpose = "INFO_DELIVERY"
	PurposeDataRequest              Purpose = "DATA_REQUEST"
	PurposeScheduleCoordination     Purpose = "SCHEDULE_COORDINATION"
	PurposeApologyRecovery          Purpose = "APOLOGY_RECOVERY"
	PurposeResponsibilitySeparation Purpose = "RESPONSIBILITY_SEPARATION"
	PurposeRejectionNotice          Purpose = "REJECTION_NOTICE"
	PurposeRefundRejection          Purpose = "REFUND_REJECTION"
	PurposeWarningPrevention        Purpose = "WARNING_PREVENTION"
	PurposeRelationshipRecovery     Purpose = "RELATIONSHIP_RECOVERY"
	PurposeNextActionConfirm        Purpose = "NEXT_ACTION_CONFIRM"
	PurposeAnnouncement             Purpose = "ANNOUNCEMENT"
)

// Purposes lists all known purposes.
var Purposes = []Purpose{
	PurposeInfoDelivery, PurposeDataRequest, PurposeScheduleCoordination,
	PurposeApologyRecovery, PurposeResponsibilitySeparation,
	PurposeRejectionNotice, PurposeRefundRejection,
	PurposeWarningPrevention, PurposeRelationshipRecovery,
	PurposeNextActionConfirm, PurposeAnnouncement,
}

// ParsePurpose returns the purpose for raw and whether it is known.
func ParsePurpose(raw string) (Purpose, bool) {
	p := Purpose(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Purposes {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// UserTier separates free and paid request limits.
type UserTier string

const (
	TierFree UserTier = "FREE"
	TierPaid UserTier = "PAID"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// ValidationIssueType names the individual output validator checks.
type ValidationIssueType string

const (
	IssueEmoji                ValidationIssueType = "EMOJI"
	IssueForbiddenPhrase      ValidationIssueType = "FORBIDDEN_PHRASE"
	IssueHallucinatedFact     ValidationIssueType = "HALLUCINATED_FACT"
	IssueEndingRepetition     ValidationIssueType = "ENDING_REPETITION"
	IssueLengthOverexpansion  ValidationIssueType = "LENGTH_OVEREXPANSION"
	IssuePerspectiveError     ValidationIssueType = "PERSPECTIVE_ERROR"
	IssueLockedSpanMissing    ValidationIssueType = "LOCKED_SPAN_MISSING"
	IssueRedactedReentry      ValidationIssueType = "REDACTED_REENTRY"
	IssueRedactionTrace       ValidationIssueType = "REDACTION_TRACE"
	IssueCoreNumberMissing    ValidationIssueType = "CORE_NUMBER_MISSING"
	IssueCoreDateMissing      ValidationIssueType = "CORE_DATE_MISSING"
	IssueSoftenContentDropped ValidationIssueType = "SOFTEN_CONTENT_DROPPED"
	IssueSectionS2Missing     ValidationIssueType = "SECTION_S2_MISSING"
	IssueInformalConjunction  ValidationIssueType = "INFORMAL_CONJUNCTION"
)
