// Package gating decides which optional pipeline stages run for a
// request and carries the metadata-mismatch check that can override
// user-selected topic/purpose/context before template selection.
package gating

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
	"tonebridge/internal/segment"
)

const (
	boosterMinTextLength  = 80
	boosterMaxLockedSpans = 1
)

// Decision is one gate outcome. Reason feeds the skip events the
// client sees.
type Decision struct {
	Fire   bool
	Reason string
}

// boosterPersonas are the recipients where an unmasked name is most
// costly, so the booster runs even without the client toggle when the
// extractor found almost nothing in a long text.
var boosterPersonas = map[domain.Persona]bool{
	domain.PersonaBoss:     true,
	domain.PersonaClient:   true,
	domain.PersonaOfficial: true,
}

// IdentityBooster reports whether the LLM name-detection pass should
// run.
func IdentityBooster(toggle bool, persona domain.Persona, spans []domain.LockedSpan, text string) Decision {
	log := logging.For(logging.CategoryPipeline)
	if toggle {
		log.Info("identity booster on", zap.String("reason", "client toggle"))
		return Decision{Fire: true, Reason: "client toggle"}
	}

	length := utf8.RuneCountInString(text)
	if boosterPersonas[persona] && len(spans) <= boosterMaxLockedSpans && length >= boosterMinTextLength {
		reason := fmt.Sprintf("persona %s with %d spans over %d chars", persona, len(spans), length)
		log.Info("identity booster on", zap.String("reason", reason))
		return Decision{Fire: true, Reason: reason}
	}

	return Decision{Fire: false, Reason: "toggle off and no high-risk persona condition"}
}

// SegmentRefine reports whether the LLM boundary-refinement pass
// should run. minLength <= 0 falls back to the default.
func SegmentRefine(segments []domain.Segment, minLength int) Decision {
	if minLength <= 0 {
		minLength = segment.RefineMinLengthDefault
	}
	for _, s := range segments {
		if utf8.RuneCountInString(s.Text) > minLength {
			return Decision{Fire: true, Reason: fmt.Sprintf("segment %s exceeds %d chars", s.ID, minLength)}
		}
	}
	return Decision{Fire: false, Reason: fmt.Sprintf("no segment over %d chars", minLength)}
}

// ContextGate reports whether the metadata-mismatch check should run.
// A client that pinned topic and purpose explicitly keeps its choices.
func ContextGate(metadataPinned bool) Decision {
	if metadataPinned {
		return Decision{Fire: false, Reason: "metadata pinned by client"}
	}
	return Decision{Fire: true, Reason: "metadata not pinned"}
}

// SituationAnalysis is always on.
func SituationAnalysis() Decision {
	return Decision{Fire: true, Reason: "always on"}
}
