package stage

import (
	"context"
	"math"

	"github.com/kalambet/tengine/internal/artifact"
)

// FlagLowConfidence marks insights derived from an input below
// lowConfidenceBelow.
const FlagLowConfidence = "low_confidence"

const (
	insightPenalty     = 0.03
	insightFloor       = 0.70
	lowConfidenceBelow = 0.88
)

const (
	recReviewTasks    = "Review task ownership and deadlines."
	recCheckDecisions = "Validate decision impact on project timeline."
	recNoActionItems  = "No action items detected."
)

// NewInsight returns the stage that turns a contextualized extraction into
// recommendations and risk flags.
func NewInsight(env *Env) Stage {
	e := &envelope{
		desc: descriptor{
			name:   Insight,
			event:  "insight",
			input:  artifact.TypeContextualized,
			output: artifact.TypeInsight,
			prefix: "insight",
			model:  "deterministic_interpretation",
		},
		env: env,
	}
	e.compute = func(_ context.Context, in *artifact.Artifact) (result, error) {
		ext, err := in.Extraction()
		if err != nil {
			return result{}, err
		}
		flags := []string{}
		if in.Confidence < lowConfidenceBelow {
			flags = append(flags, FlagLowConfidence)
		}
		return result{
			content: artifact.Insight{
				Recommendations: recommendations(ext),
				RiskFlags:       flags,
				SourceSummary:   ext.Summary,
			},
			confidence: InsightConfidence(in.Confidence),
			status:     artifact.StatusDraft,
			context:    append([]string{}, in.ReferencedContext...),
		}, nil
	}
	return e
}

// InsightConfidence is max(base - 0.03, 0.70).
func InsightConfidence(base float64) float64 {
	return roundConfidence(math.Max(base-insightPenalty, insightFloor))
}

func recommendations(ext artifact.Extraction) []string {
	recs := []string{}
	if len(ext.Tasks) > 0 {
		recs = append(recs, recReviewTasks)
	}
	if len(ext.Decisions) > 0 {
		recs = append(recs, recCheckDecisions)
	}
	if len(ext.Tasks) == 0 {
		recs = append(recs, recNoActionItems)
	}
	return recs
}
