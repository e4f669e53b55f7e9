package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

type report struct {
	StartedAt          time.Time               `json:"started_at"`
	DurationSeconds    float64                 `json:"duration_seconds"`
	TotalScenarios     int64                   `json:"total_scenarios"`
	SuccessScenarios   int64                   `json:"success_scenarios"`
	FailedScenarios    int64                   `json:"failed_scenarios"`
	ContendedScenarios int64                   `json:"contended_scenarios"`
	ErrorRate          float64                 `json:"error_rate"`
	RPS                float64                 `json:"rps"`
	ScenarioLatencyMs  latencySummary          `json:"scenario_latency_ms"`
	Outcomes           map[string]int64        `json:"outcomes"`
	Methods            map[string]methodReport `json:"methods"`
}

func printReport(w io.Writer, r report, cfg config) {
	l := r.ScenarioLatencyMs
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d contended=%d failed=%d error_rate=%.4f\n",
		cfg.mode, cfg.target(), r.TotalScenarios, r.SuccessScenarios, r.ContendedScenarios, r.FailedScenarios, r.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", r.DurationSeconds, r.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		l.Min, l.Avg, l.P50, l.P95, l.P99, l.Max)

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(r.Methods)) {
		if name == scenarioMetric {
			continue
		}
		m := r.Methods[name]
		fmt.Fprintf(tw, "%s:\tcalls=%d\tsuccess=%d\tfailed=%d\terror_rate=%.4f\tp95=%.2fms\n",
			name, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95)
	}
	_ = tw.Flush()
}

// writeJSONReport пишет отчёт только в файл внутри текущего каталога.
func writeJSONReport(path string, r report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}
