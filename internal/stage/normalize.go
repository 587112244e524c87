package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kalambet/tengine/internal/artifact"
)

const normalizeConfidence = 0.95

var (
	blankRuns    = regexp.MustCompile(`\n\s*\n+`)
	speakerLabel = regexp.MustCompile(`^([A-Za-z][A-Za-z\s]+?):\s*(.*)$`)
)

// NewNormalize returns the root stage: it cleans raw transcript text and maps
// speaker names to "Speaker N" in order of first appearance.
func NewNormalize(env *Env) Stage {
	e := &envelope{
		desc: descriptor{
			name:   Normalize,
			event:  "normalize",
			input:  artifact.TypeTranscript,
			output: artifact.TypeTranscript,
			prefix: "transcript",
			model:  "deterministic",
			root:   true,
		},
		env: env,
	}
	e.compute = func(_ context.Context, in *artifact.Artifact) (result, error) {
		t, err := in.Transcript()
		if err != nil {
			return result{}, err
		}
		return result{
			content:    artifact.Transcript{Text: NormalizeText(t.Text)},
			confidence: normalizeConfidence,
			status:     artifact.StatusDraft,
		}, nil
	}
	return e
}

// NormalizeText trims text, collapses runs of blank lines into one blank line
// and relabels "Name:" prefixes as "Speaker N:".
func NormalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = blankRuns.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	speakers := make(map[string]string)
	for i, line := range lines {
		m := speakerLabel.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		label, ok := speakers[name]
		if !ok {
			label = fmt.Sprintf("Speaker %d", len(speakers)+1)
			speakers[name] = label
		}
		lines[i] = label + ": " + m[2]
	}
	return strings.Join(lines, "\n")
}
