package stage

import (
	"context"
	"regexp"
	"strings"

	"github.com/kalambet/tengine/internal/artifact"
)

const extractConfidence = 0.85

var speakerPrefix = regexp.MustCompile(`^Speaker \d+:\s*`)

var (
	taskMarkers     = []string{"will", "action", "todo"}
	decisionMarkers = []string{"decided", "agree"}
)

// NewExtract returns the stage that pulls a summary, tasks and decisions out
// of a normalized transcript.
func NewExtract(env *Env) Stage {
	e := &envelope{
		desc: descriptor{
			name:   Extract,
			event:  "extract",
			input:  artifact.TypeTranscript,
			output: artifact.TypeExtraction,
			prefix: "extraction",
			model:  "rule-based",
		},
		env: env,
	}
	e.compute = func(_ context.Context, in *artifact.Artifact) (result, error) {
		t, err := in.Transcript()
		if err != nil {
			return result{}, err
		}
		return result{
			content:    ExtractText(t.Text),
			confidence: extractConfidence,
			status:     artifact.StatusDraft,
		}, nil
	}
	return e
}

// ExtractText derives the extraction payload from transcript text. The
// summary is the first two non-empty lines without speaker labels; tasks and
// decisions are the trimmed lines containing a marker word, case-insensitively.
func ExtractText(text string) artifact.Extraction {
	lines := strings.Split(text, "\n")

	var summary []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		summary = append(summary, speakerPrefix.ReplaceAllString(line, ""))
		if len(summary) == 2 {
			break
		}
	}

	return artifact.Extraction{
		Summary:   strings.Join(summary, " "),
		Tasks:     linesContaining(lines, taskMarkers),
		Decisions: linesContaining(lines, decisionMarkers),
	}
}

func linesContaining(lines, markers []string) []string {
	out := []string{}
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, m := range markers {
			if strings.Contains(lower, m) {
				out = append(out, strings.TrimSpace(line))
				break
			}
		}
	}
	return out
}
