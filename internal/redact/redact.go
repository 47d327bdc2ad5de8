// Package redact tallies RED/YELLOW segments and builds the redaction
// map the output validator uses to catch RED content re-entering the
// generated message. The final model receives segments as JSON with
// RED text nulled out, so no processed-text assembly happens here.
package redact

import (
	"fmt"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
)

// Result carries the tier counts and the RED marker map.
type Result struct {
	RedCount    int
	YellowCount int
	// RedactionMap keys are [REDACTED:<LABEL>_<N>] markers, values the
	// original RED segment text. Counters run per label.
	RedactionMap map[string]string
}

// Process counts tiers and assigns a redaction marker to every RED
// segment.
func Process(labeled []domain.LabeledSegment) Result {
	res := Result{RedactionMap: make(map[string]string)}
	counters := make(map[domain.SegmentLabel]int)

	for _, ls := range labeled {
		switch ls.Label.Tier() {
		case domain.TierRed:
			counters[ls.Label]++
			marker := fmt.Sprintf("[REDACTED:%s_%d]", ls.Label, counters[ls.Label])
			res.RedactionMap[marker] = ls.Text
			res.RedCount++
		case domain.TierYellow:
			res.YellowCount++
		}
	}

	logging.For(logging.CategoryPipeline).Info("redaction tally",
		zap.Int("red", res.RedCount),
		zap.Int("yellow", res.YellowCount),
		zap.Int("green", len(labeled)-res.RedCount-res.YellowCount))

	return res
}
