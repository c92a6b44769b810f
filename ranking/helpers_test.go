package ranking

import (
	"fmt"
	"sync"

	"github.com/hupe1980/vecgo/testutil"
	"github.com/poiesic/candirank/core"
)

// makePool builds n entries of dim dimensions from a seeded generator.
// Candidate texts are "<prefix><row>" and IDs are 1000+row.
func makePool(seed int64, n, dim int, prefix string, unit bool) *core.Pool {
	rng := testutil.NewRNG(seed)
	raw := rng.UniformVectors(n, dim)
	if unit {
		raw = rng.UnitVectors(n, dim)
	}
	entries := make([]core.Entry, n)
	for i, v := range raw {
		text := fmt.Sprintf("%s%d", prefix, i)
		entries[i] = core.Entry{
			ID:     core.ID(1000 + i),
			Item:   core.Item{Text: text, Original: "orig-" + text},
			Vector: v,
		}
	}
	return &core.Pool{Entries: entries}
}

func testConfig(metric Metric, threshold float64) Config {
	cfg := DefaultConfig()
	cfg.Metric = metric
	cfg.Threshold = threshold
	cfg.NumCandidates = 5
	cfg.SearchSize = 4
	cfg.Workers = 1
	return cfg
}

type windowEvent struct {
	query      core.ID
	start, end int
	passed     int
}

// recordingMonitor captures every hook call.
type recordingMonitor struct {
	mu         sync.Mutex
	started    []core.ID
	windows    []windowEvent
	earlyStops map[core.ID]int
	finished   []core.ID
	failed     map[core.ID]error
}

func newRecordingMonitor() *recordingMonitor {
	return &recordingMonitor{
		earlyStops: make(map[core.ID]int),
		failed:     make(map[core.ID]error),
	}
}

func (m *recordingMonitor) Start(q *core.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, q.ID)
}

func (m *recordingMonitor) AfterWindow(q *core.Entry, start, end, passed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, windowEvent{q.ID, start, end, passed})
}

func (m *recordingMonitor) EarlyStop(q *core.Entry, end int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earlyStops[q.ID] = end
}

func (m *recordingMonitor) Finish(q *core.Entry, r *core.QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, r.QueryID)
}

func (m *recordingMonitor) Fail(q *core.Entry, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[q.ID] = err
}
