package telemetry

// StageSummary aggregates the events of one stage.
type StageSummary struct {
	Stage         string
	Executions    int
	Replays       int
	MeanLatencyMs float64
	TotalCostUSD  float64
}

// Summarize groups events by stage, in order of each stage's first event.
func Summarize(events []Event) []StageSummary {
	idx := make(map[string]int)
	var out []StageSummary
	var latency []int64
	for _, e := range events {
		i, ok := idx[e.Stage]
		if !ok {
			i = len(out)
			idx[e.Stage] = i
			out = append(out, StageSummary{Stage: e.Stage})
			latency = append(latency, 0)
		}
		out[i].Executions++
		if e.IsReplay() {
			out[i].Replays++
		}
		out[i].TotalCostUSD += e.CostUSD
		latency[i] += e.LatencyMs
	}
	for i := range out {
		out[i].MeanLatencyMs = float64(latency[i]) / float64(out[i].Executions)
	}
	return out
}

// Runs returns the distinct run ids in order of first appearance.
func Runs(events []Event) []string {
	seen := make(map[string]bool)
	var runs []string
	for _, e := range events {
		if !seen[e.RunID] {
			seen[e.RunID] = true
			runs = append(runs, e.RunID)
		}
	}
	return runs
}
