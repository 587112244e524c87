package stage

import (
	"context"
	"math"

	"github.com/kalambet/tengine/internal/artifact"
)

const (
	validatePenalty  = 0.05
	validateFloor    = 0.60
	validatedAtLeast = 0.85
	lowRiskAtLeast   = 0.80
)

// Hallucination risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
)

// NewValidate returns the final stage. Its score is both the artifact's
// confidence and the validation_score field.
func NewValidate(env *Env) Stage {
	e := &envelope{
		desc: descriptor{
			name:   Validate,
			event:  "validation",
			input:  artifact.TypeInsight,
			output: artifact.TypeValidated,
			prefix: "validated",
			model:  "deterministic_validation",
		},
		env: env,
	}
	e.compute = func(_ context.Context, in *artifact.Artifact) (result, error) {
		ins, err := in.Insight()
		if err != nil {
			return result{}, err
		}
		hasContext := len(in.ReferencedContext) > 0
		score := ValidationScore(in.Confidence, ins.HasFlag(FlagLowConfidence), hasContext)
		return result{
			content: artifact.Validation{
				Recommendations:   append([]string{}, ins.Recommendations...),
				RiskFlags:         append([]string{}, ins.RiskFlags...),
				ValidationScore:   score,
				HallucinationRisk: HallucinationRisk(in.Confidence, hasContext),
			},
			confidence: score,
			status:     ValidationStatus(score),
			context:    append([]string{}, in.ReferencedContext...),
		}, nil
	}
	return e
}

// ValidationScore starts from the insight confidence, subtracts 0.05 for a
// low_confidence flag and 0.05 more when no context was referenced, and never
// drops below 0.60.
func ValidationScore(confidence float64, lowConfidence, hasContext bool) float64 {
	score := confidence
	if lowConfidence {
		score -= validatePenalty
	}
	if !hasContext {
		score -= validatePenalty
	}
	return roundConfidence(math.Max(score, validateFloor))
}

// ValidationStatus is validated for scores of at least 0.85.
func ValidationStatus(score float64) artifact.Status {
	if score >= validatedAtLeast {
		return artifact.StatusValidated
	}
	return artifact.StatusReviewRequired
}

// HallucinationRisk is medium without referenced context or below 0.80
// insight confidence.
func HallucinationRisk(confidence float64, hasContext bool) string {
	if !hasContext || confidence < lowRiskAtLeast {
		return RiskMedium
	}
	return RiskLow
}
