package label

import (
	"regexp"

	"go.uber.org/zap"

	"tonebridge/internal/domain"
	"tonebridge/internal/logging"
)

// Confirmed patterns override to RED immediately; ambiguous patterns
// only upgrade GREEN to YELLOW. Profanity is matched against a
// normalized form so spacing tricks do not bypass it.
var (
	profanityRe      = regexp.MustCompile(`ㅅㅂ|ㅄ|ㅂㅅ|ㄱㅅㄲ|시발|씨발|병신|개새끼|개세끼|지랄|ㅈㄹ|ㅂㄹ`)
	abilityDenialRe  = regexp.MustCompile(`그것도\s*못|뇌가\s*있|할\s*줄\s*모르|그것도\s*몰라|무능`)
	mockeryCertainRe = regexp.MustCompile(`(?:잘|대단|훌륭)\S{0,4}(?:시네요|하시네요|십니다)\s*[ㅋㅎ^]{2,}`)

	softProfanityRe = regexp.MustCompile(`미친|개같|ㅈㄴ`)

	enforceNormalizeRe = regexp.MustCompile(`[\s\-_.·!@#$%^&*()]+`)
)

// Enforce applies the server-side RED rules on top of the model's
// labels. Segments already RED pass through unchanged, which also
// makes the pass idempotent.
func Enforce(labeled []domain.LabeledSegment) []domain.LabeledSegment {
	log := logging.For(logging.CategoryPipeline)
	result := make([]domain.LabeledSegment, 0, len(labeled))

	for _, ls := range labeled {
		if ls.Label.Tier() == domain.TierRed {
			result = append(result, ls)
			continue
		}

		normalized := enforceNormalizeRe.ReplaceAllString(ls.Text, "")

		if profanityRe.MatchString(normalized) || mockeryCertainRe.MatchString(ls.Text) {
			log.Info("red enforcer confirmed override",
				zap.String("segment", ls.SegmentID),
				zap.String("from", string(ls.Label)),
				zap.String("to", string(domain.LabelAggression)))
			ls.Label = domain.LabelAggression
			result = append(result, ls)
			continue
		}

		if abilityDenialRe.MatchString(ls.Text) {
			log.Info("red enforcer confirmed override",
				zap.String("segment", ls.SegmentID),
				zap.String("from", string(ls.Label)),
				zap.String("to", string(domain.LabelPersonalAttack)))
			ls.Label = domain.LabelPersonalAttack
			result = append(result, ls)
			continue
		}

		if ls.Label.Tier() == domain.TierGreen && softProfanityRe.MatchString(normalized) {
			log.Info("red enforcer soft upgrade",
				zap.String("segment", ls.SegmentID),
				zap.String("from", string(ls.Label)),
				zap.String("to", string(domain.LabelEmotional)))
			ls.Label = domain.LabelEmotional
			result = append(result, ls)
			continue
		}

		result = append(result, ls)
	}
	return result
}
