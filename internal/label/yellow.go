package label

import (
	"regexp"
	"sort"

	"tonebridge/internal/domain"
)

// Yellow recovery only upgrades when the per-segment score reaches the
// threshold, and never more than maxUpgrades segments per run.
const (
	yellowScoreThreshold = 2
	maxYellowUpgrades    = 2
)

// YellowUpgrade recommends relabeling one GREEN segment.
type YellowUpgrade struct {
	SegmentID string
	NewLabel  domain.SegmentLabel
	Reason    string
	Score     int
}

var (
	recipientRe   = regexp.MustCompile(`상대|님|너희|귀사|담당`)
	generalizerRe = regexp.MustCompile(`매번|맨날|항상|도대체`)

	emotionalStrongRe = regexp.MustCompile(`답답|화가|짜증|열받|미치겠|환장`)
	emotionalSoftRe   = regexp.MustCompile(`정말|너무`)

	speculationStrongRe = regexp.MustCompile(`틀림없이|확실히`)
	speculationSoftRe   = regexp.MustCompile(`아마|것\s*같다|것\s*같아|같다|듯(?:[^가-힣ㄱ-ㅎㅏ-ㅣ]|$)|분명`)

	defenseStrongRe = regexp.MustCompile(`내\s*탓\s*하려|말해\s*두는데`)
	defenseSoftRe   = regexp.MustCompile(`난\s.*했고|최선을\s*다했|제\s*잘못도\s*있지만`)
)

type yellowCategory struct {
	name   string
	label  domain.SegmentLabel
	strong *regexp.Regexp
	soft   *regexp.Regexp
}

var yellowCategories = []yellowCategory{
	{"emotional_expression", domain.LabelEmotional, emotionalStrongRe, emotionalSoftRe},
	{"speculation", domain.LabelExcessDetail, speculationStrongRe, speculationSoftRe},
	{"defense", domain.LabelSelfJustification, defenseStrongRe, defenseSoftRe},
}

// ScanYellowTriggers looks for YELLOW-worthy patterns the model missed.
// Only called on all-GREEN results with enough segments; returns up to
// maxYellowUpgrades recommendations sorted by score.
func ScanYellowTriggers(segments []domain.Segment, labeled []domain.LabeledSegment) []YellowUpgrade {
	labelMap := make(map[string]domain.LabeledSegment, len(labeled))
	for _, ls := range labeled {
		labelMap[ls.SegmentID] = ls
	}

	var candidates []YellowUpgrade
	for _, seg := range segments {
		ls, ok := labelMap[seg.ID]
		if !ok || ls.Label.Tier() != domain.TierGreen {
			continue
		}

		total := 0
		var reasons []string
		var bestLabel domain.SegmentLabel
		bestScore := 0

		// Blame + generalization has compound scoring: a generalizer
		// with a recipient reference in the same segment is strong.
		hasGeneralizer := generalizerRe.MatchString(seg.Text)
		hasRecipient := recipientRe.MatchString(seg.Text)
		switch {
		case hasGeneralizer && hasRecipient:
			total += 2
			reasons = append(reasons, "blame(generalizer+recipient)")
			bestScore = 2
			bestLabel = domain.LabelAccountability
		case hasGeneralizer:
			total++
			reasons = append(reasons, "blame(generalizer)")
			bestScore = 1
			bestLabel = domain.LabelNegativeFeedback
		}

		for _, cat := range yellowCategories {
			score := 0
			if cat.strong.MatchString(seg.Text) {
				score += 2
				reasons = append(reasons, cat.name+"(strong)")
			}
			if cat.soft.MatchString(seg.Text) {
				score++
				reasons = append(reasons, cat.name+"(soft)")
			}
			if score > 0 {
				total += score
				if score > bestScore {
					bestScore = score
					bestLabel = cat.label
				}
			}
		}

		if total >= yellowScoreThreshold && bestLabel != "" {
			candidates = append(candidates, YellowUpgrade{
				SegmentID: seg.ID,
				NewLabel:  bestLabel,
				Reason:    joinReasons(reasons),
				Score:     total,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxYellowUpgrades {
		candidates = candidates[:maxYellowUpgrades]
	}
	return candidates
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
