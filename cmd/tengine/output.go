package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/tengine/internal/artifact"
	"github.com/kalambet/tengine/internal/lineage"
	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/stage"
	"github.com/kalambet/tengine/internal/telemetry"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const rule = "============================================================"

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, colorize(colorBold, title))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}

func trend(prev, cur float64) string {
	switch {
	case cur > prev:
		return "↑"
	case cur < prev:
		return "↓"
	}
	return "→"
}

func describe(a *artifact.Artifact) string {
	return fmt.Sprintf("%s (v%d, conf=%.2f)", a.Type, a.Version, a.Confidence)
}

// printRun reports the artifacts of a pipeline run with the confidence of
// each stage relative to the previous one.
func printRun(w io.Writer, res *pipeline.Result) {
	printHeader(w, "INGESTION COMPLETE")
	fmt.Fprintf(w, "Run ID: %s\n\n", res.RunID)

	fmt.Fprintln(w, "Confidence Evolution:")
	var prev *artifact.Artifact
	for _, name := range stage.Order {
		a, ok := res.Artifacts[name]
		if !ok {
			fmt.Fprintf(w, "  %-15s %s\n", name, colorize(colorRed, "not run"))
			continue
		}
		if prev == nil {
			fmt.Fprintf(w, "  %-15s %.2f\n", name, a.Confidence)
		} else {
			fmt.Fprintf(w, "  %-15s %.2f %s\n", name, a.Confidence, trend(prev.Confidence, a.Confidence))
		}
		prev = a
	}

	final := res.Artifacts[stage.Validate]
	if final == nil {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final Artifact: %s\n", final.ID)
	fmt.Fprintf(w, "Final Status: %s\n", final.Status)
	if v, ok := final.Content.(artifact.Validation); ok {
		fmt.Fprintf(w, "Hallucination Risk: %s\n", v.HallucinationRisk)
	}
	fmt.Fprintf(w, "Referenced Context: %d item(s)\n", len(final.ReferencedContext))

	printHeader(w, "REPLAY A STAGE")
	fmt.Fprintln(w, "tengine replay <artifact_id> --stage <stage>")
	fmt.Fprintln(w)
}

func printLineage(w io.Writer, v *lineage.View) {
	a := v.Artifact
	printHeader(w, "ARTIFACT DETAILS")
	fmt.Fprintf(w, "Artifact ID: %s\n", a.ID)
	fmt.Fprintf(w, "Type: %s\n", a.Type)
	fmt.Fprintf(w, "Version: %d\n", a.Version)
	fmt.Fprintf(w, "Confidence: %.2f\n", a.Confidence)
	fmt.Fprintf(w, "Status: %s\n", a.Status)
	fmt.Fprintf(w, "Created: %s\n", a.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Fprintf(w, "Referenced Context: %d item(s)\n", len(a.ReferencedContext))
	for _, id := range a.ReferencedContext {
		fmt.Fprintf(w, "  - %s\n", id)
	}

	printHeader(w, "LINEAGE CHAIN")
	fmt.Fprintln(w, describe(a))
	if len(v.Chain) == 0 {
		fmt.Fprintln(w, "(No parent artifacts)")
	}
	for _, anc := range v.Chain {
		fmt.Fprintf(w, "%s└─ %s\n", strings.Repeat("   ", anc.Depth), describe(anc.Artifact))
	}

	printHeader(w, "VERSION HISTORY")
	if len(v.Versions) == 0 {
		fmt.Fprintln(w, "(No versions found)")
	} else {
		fmt.Fprintf(w, "Found %d version(s) of %s:\n", len(v.Versions), a.Family())
		for _, ver := range v.Versions {
			fmt.Fprintf(w, "  - %s (v%d, conf=%.2f)\n", ver.ID, ver.Version, ver.Confidence)
		}
	}
	fmt.Fprintln(w)
}

func printReplay(w io.Writer, original string, name stage.Name, a *artifact.Artifact, stored string) {
	printHeader(w, "REPLAY COMPLETE")
	fmt.Fprintf(w, "Original Artifact: %s\n", original)
	fmt.Fprintf(w, "New Artifact: %s\n", a.ID)
	fmt.Fprintf(w, "Stage: %s\n", name)
	fmt.Fprintf(w, "New Version: %d\n", a.Version)
	fmt.Fprintf(w, "New Confidence: %.2f\n", a.Confidence)
	fmt.Fprintf(w, "Stored In: %s\n", stored)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Lineage Command:")
	fmt.Fprintf(w, "tengine lineage %s\n\n", a.ID)
}

func printSummary(w io.Writer, scope, name string, events []telemetry.Event) {
	printStatus(w, scope, "%s", name)
	printStatus(w, "Runs", "%d", len(telemetry.Runs(events)))
	printStatus(w, "Stage executions", "%d", len(events))
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-18s %6s %8s %12s\n", "STAGE", "RUNS", "REPLAYS", "MEAN MS")
	for _, s := range telemetry.Summarize(events) {
		fmt.Fprintf(w, "  %-18s %6d %8d %12.1f\n", s.Stage, s.Executions, s.Replays, s.MeanLatencyMs)
	}
}
