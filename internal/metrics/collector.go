package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// PipelineTimings holds per-stage latency measurements for one upload
type PipelineTimings struct {
	mu sync.RWMutex

	TotalStartTime time.Time `json:"-"`
	TotalLatencyMs float64   `json:"totalLatencyMs"`

	RecordID    string `json:"recordId"`
	ObjectCount int    `json:"objectCount"`
	Outcome     string `json:"outcome"`

	stageStarts map[string]time.Time
	Timings     map[string]float64 `json:"timings"`

	sink *Metrics
}

// NewPipelineTimings creates a timing collector for a single pipeline run.
// Stage durations are also forwarded to sink when it is non-nil.
func NewPipelineTimings(sink *Metrics) *PipelineTimings {
	return &PipelineTimings{
		TotalStartTime: time.Now(),
		stageStarts:    make(map[string]time.Time),
		Timings:        make(map[string]float64),
		sink:           sink,
	}
}

// StartStage marks the start of a stage
func (m *PipelineTimings) StartStage(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageStarts[stage] = time.Now()
}

// EndStage marks the end of a stage started with StartStage
func (m *PipelineTimings) EndStage(stage string) {
	m.mu.Lock()
	start, ok := m.stageStarts[stage]
	if !ok {
		m.mu.Unlock()
		return
	}
	elapsed := time.Since(start)
	m.Timings[stage] += float64(elapsed.Microseconds()) / 1000.0
	delete(m.stageStarts, stage)
	m.mu.Unlock()

	m.sink.ObserveStage(stage, elapsed.Seconds())
}

// SetRecord attaches the record id and object count once they are known
func (m *PipelineTimings) SetRecord(recordID string, objectCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordID = recordID
	m.ObjectCount = objectCount
}

// Finalize computes the total latency and counts the run by outcome
func (m *PipelineTimings) Finalize(outcome string) {
	m.mu.Lock()
	m.Outcome = outcome
	if !m.TotalStartTime.IsZero() {
		m.TotalLatencyMs = float64(time.Since(m.TotalStartTime).Microseconds()) / 1000.0
		m.Timings["total"] = m.TotalLatencyMs
	}
	m.mu.Unlock()

	m.sink.RecordPipelineRun(outcome)
}

// Fields flattens the timings into logger key/value pairs
func (m *PipelineTimings) Fields() []interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stages := make([]string, 0, len(m.Timings))
	for stage := range m.Timings {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	fields := []interface{}{
		"record_id", m.RecordID,
		"object_count", m.ObjectCount,
		"outcome", m.Outcome,
	}
	for _, stage := range stages {
		fields = append(fields, stage+"_ms", formatFloat(m.Timings[stage]))
	}
	return fields
}

// Stage returns the accumulated milliseconds for a stage
func (m *PipelineTimings) Stage(stage string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.Timings[stage]
	return v, ok
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
