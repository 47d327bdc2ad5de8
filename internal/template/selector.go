package template

import (
	"regexp"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
)

// SelectionResult is the chosen template plus the persona-adjusted
// section list the final prompt is built from.
type SelectionResult struct {
	Template          Template
	S2Enforced        bool
	EffectiveSections []Section
	ShortenSections   map[Section]bool
	ExpandSections    map[Section]bool
}

var purposeTemplates = map[domain.Purpose]string{
	domain.PurposeInfoDelivery:             "T01_GENERAL",
	domain.PurposeDataRequest:              "T02_DATA_REQUEST",
	domain.PurposeScheduleCoordination:     "T04_SCHEDULE",
	domain.PurposeApologyRecovery:          "T05_APOLOGY",
	domain.PurposeResponsibilitySeparation: "T09_BLAME_SEPARATION",
	domain.PurposeRejectionNotice:          "T06_REJECTION",
	domain.PurposeRefundRejection:          "T11_REFUND_REJECTION",
	domain.PurposeWarningPrevention:        "T12_WARNING_PREVENTION",
	domain.PurposeRelationshipRecovery:     "T10_RELATIONSHIP_RECOVERY",
	domain.PurposeNextActionConfirm:        "T01_GENERAL",
	domain.PurposeAnnouncement:             "T07_ANNOUNCEMENT",
}

var contextTemplates = map[domain.SituationContext]string{
	domain.ContextRequest:        "T02_DATA_REQUEST",
	domain.ContextScheduleDelay:  "T04_SCHEDULE",
	domain.ContextUrging:         "T03_NAGGING_REMINDER",
	domain.ContextRejection:      "T06_REJECTION",
	domain.ContextApology:        "T05_APOLOGY",
	domain.ContextComplaint:      "T09_BLAME_SEPARATION",
	domain.ContextAnnouncement:   "T07_ANNOUNCEMENT",
	domain.ContextFeedback:       "T08_FEEDBACK",
	domain.ContextBilling:        "T09_BLAME_SEPARATION",
	domain.ContextSupport:        "T05_APOLOGY",
	domain.ContextContract:       "T06_REJECTION",
	domain.ContextRecruiting:     "T01_GENERAL",
	domain.ContextCivilComplaint: "T09_BLAME_SEPARATION",
	domain.ContextGratitude:      "T10_RELATIONSHIP_RECOVERY",
}

var refundKeywordsRe = regexp.MustCompile(`환불|취소|반품|결제\s*취소|카드\s*취소|refund|cancel`)

// Select picks the template for a request: explicit purpose wins, then
// the primary context, then the default. Refund topics or refund
// keywords in a rejection-like request override to T11. When the
// labels carry accountability or negative feedback, S2 is injected
// after S1 (or S0) so the prompt always asks for an internal-check
// cushion.
func Select(
	registry *Registry,
	persona domain.Persona,
	contexts []domain.SituationContext,
	topic domain.Topic,
	purpose domain.Purpose,
	stats domain.LabelStats,
	maskedText string,
) SelectionResult {
	log := logging.For(logging.CategoryPipeline)

	var templateID string
	switch {
	case purpose != "":
		templateID = purposeTemplates[purpose]
		if templateID == "" {
			templateID = DefaultTemplateID
		}
		log.Info("template selected by purpose",
			zap.String("purpose", string(purpose)), zap.String("template", templateID))
	case len(contexts) > 0:
		templateID = contextTemplates[contexts[0]]
		if templateID == "" {
			templateID = DefaultTemplateID
		}
		log.Info("template selected by context",
			zap.String("context", string(contexts[0])), zap.String("template", templateID))
	default:
		templateID = DefaultTemplateID
	}

	if topic == domain.TopicRefundCancel && rejectionLike(purpose, contexts) {
		templateID = "T11_REFUND_REJECTION"
		log.Info("template topic override", zap.String("template", templateID))
	}

	if templateID != "T11_REFUND_REJECTION" &&
		maskedText != "" &&
		refundKeywordsRe.MatchString(maskedText) &&
		(stats.HasNegativeFeedback || rejectionLike(purpose, contexts)) {
		templateID = "T11_REFUND_REJECTION"
		log.Info("template keyword override", zap.String("template", templateID))
	}

	tmpl := registry.Get(templateID)

	s2Enforced := false
	sections := make([]Section, len(tmpl.SectionOrder))
	copy(sections, tmpl.SectionOrder)
	if (stats.HasAccountability || stats.HasNegativeFeedback) && !containsSection(sections, S2OurEffort) {
		insertAfter := -1
		if i := indexOfSection(sections, S1Acknowledge); i >= 0 {
			insertAfter = i
		} else if i := indexOfSection(sections, S0Greeting); i >= 0 {
			insertAfter = i
		}
		sections = insertSection(sections, insertAfter+1, S2OurEffort)
		s2Enforced = true
		log.Info("S2 section enforced for accountability labels")
	}

	result := SelectionResult{
		Template:          tmpl,
		S2Enforced:        s2Enforced,
		EffectiveSections: sections,
		ShortenSections:   map[Section]bool{},
		ExpandSections:    map[Section]bool{},
	}

	if rule, ok := tmpl.PersonaRules[persona]; ok {
		if len(rule.Skip) > 0 {
			var kept []Section
			for _, s := range result.EffectiveSections {
				if !containsSection(rule.Skip, s) {
					kept = append(kept, s)
				}
			}
			result.EffectiveSections = kept
		}
		for _, s := range rule.Shorten {
			result.ShortenSections[s] = true
		}
		for _, s := range rule.Expand {
			result.ExpandSections[s] = true
		}
	}

	return result
}

func rejectionLike(purpose domain.Purpose, contexts []domain.SituationContext) bool {
	if purpose == domain.PurposeRejectionNotice || purpose == domain.PurposeRefundRejection {
		return true
	}
	for _, c := range contexts {
		if c == domain.ContextRejection {
			return true
		}
	}
	return false
}

func containsSection(sections []Section, target Section) bool {
	return indexOfSection(sections, target) >= 0
}

func indexOfSection(sections []Section, target Section) int {
	for i, s := range sections {
		if s == target {
			return i
		}
	}
	return -1
}

func insertSection(sections []Section, at int, s Section) []Section {
	out := make([]Section, 0, len(sections)+1)
	out = append(out, sections[:at]...)
	out = append(out, s)
	out = append(out, sections[at:]...)
	return out
}
