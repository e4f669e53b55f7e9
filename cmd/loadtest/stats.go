package main

import (
	"maps"
	"math"
	"slices"
	"sync"
	"time"
)

// scenarioMetric — имя, под которым recorder копит итоги целых сценариев.
const scenarioMetric = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type tally struct {
	calls   int64
	success int64
	codes   map[string]int64
	samples []time.Duration
}

func (t *tally) summary() methodReport {
	failed := t.calls - t.success
	return methodReport{
		Calls:     t.calls,
		Success:   t.success,
		Failed:    failed,
		ErrorRate: ratio(failed, t.calls),
		Codes:     maps.Clone(t.codes),
		LatencyMs: summarize(t.samples),
	}
}

// recorder копит вызовы по имени метода; безопасен для параллельных воркеров.
type recorder struct {
	mu      sync.Mutex
	tallies map[string]*tally
}

func newRecorder() *recorder {
	return &recorder{tallies: make(map[string]*tally)}
}

func (r *recorder) observe(name string, took time.Duration, code string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.tallies[name]
	if t == nil {
		t = &tally{codes: make(map[string]int64)}
		r.tallies[name] = t
	}
	t.calls++
	if ok {
		t.success++
	}
	t.codes[code]++
	t.samples = append(t.samples, took)
}

func (r *recorder) method(name string) (methodReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tallies[name]
	if !ok {
		return methodReport{}, false
	}
	return t.summary(), true
}

// report сводит итоги. Успех и сбой сценария берутся по коду исхода, остальное —
// ожидаемая конкуренция за остатки.
func (r *recorder) report(started time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:       started.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Outcomes:        map[string]int64{},
		Methods:         make(map[string]methodReport, len(r.tallies)),
	}
	for name, t := range r.tallies {
		out.Methods[name] = t.summary()
	}

	if s := r.tallies[scenarioMetric]; s != nil {
		out.TotalScenarios = s.calls
		out.SuccessScenarios = s.codes[string(outcomeOK)]
		out.FailedScenarios = s.codes[string(outcomeFailed)]
		out.ContendedScenarios = s.calls - out.SuccessScenarios - out.FailedScenarios
		out.ErrorRate = ratio(out.FailedScenarios, out.TotalScenarios)
		out.ScenarioLatencyMs = summarize(s.samples)
		maps.Copy(out.Outcomes, s.codes)
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func summarize(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	ms := make([]float64, len(samples))
	var sum float64
	for i, d := range samples {
		ms[i] = float64(d.Microseconds()) / 1000
		sum += ms[i]
	}
	slices.Sort(ms)

	return latencySummary{
		Min: ms[0],
		Max: ms[len(ms)-1],
		Avg: sum / float64(len(ms)),
		P50: percentile(ms, 50),
		P95: percentile(ms, 95),
		P99: percentile(ms, 99),
	}
}

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
