package stage

import (
	"context"
	"math"

	"github.com/kalambet/tengine/internal/artifact"
)

const (
	contextBoost   = 0.02
	contextCeiling = 0.95
)

// NewContextualize returns the stage that attaches matching context documents
// to an extraction. The extraction content is carried over unchanged.
func NewContextualize(env *Env, retriever ContextRetriever) Stage {
	e := &envelope{
		desc: descriptor{
			name:   Contextualize,
			event:  "context_injection",
			input:  artifact.TypeExtraction,
			output: artifact.TypeContextualized,
			prefix: "contextualized",
			model:  "deterministic_context_injection",
		},
		env: env,
	}
	e.compute = func(ctx context.Context, in *artifact.Artifact) (result, error) {
		ext, err := in.Extraction()
		if err != nil {
			return result{}, err
		}
		refs := []string{}
		if retriever != nil {
			if refs, err = retriever.Retrieve(ctx, ext.Summary); err != nil {
				return result{}, err
			}
		}
		return result{
			content:    copyExtraction(ext),
			confidence: ContextualizeConfidence(in.Confidence, len(refs)),
			status:     artifact.StatusDraft,
			context:    refs,
		}, nil
	}
	return e
}

// ContextualizeConfidence is min(base + 0.02*n, 0.95).
func ContextualizeConfidence(base float64, n int) float64 {
	return roundConfidence(math.Min(base+contextBoost*float64(n), contextCeiling))
}

func copyExtraction(e artifact.Extraction) artifact.Extraction {
	return artifact.Extraction{
		Summary:   e.Summary,
		Tasks:     append([]string{}, e.Tasks...),
		Decisions: append([]string{}, e.Decisions...),
	}
}
