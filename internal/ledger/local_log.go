package ledger

import (
	"sort"
	"sync"

	"github.com/blagoySimandov/autoflow/internal/models"
)

const DefaultLocalCapacity = 100

// LocalLog is a bounded in-process store used when the durable store is not
// available. The oldest items are evicted first.
type LocalLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []*models.MessageLogEntry
	runs     []*models.WorkflowRun
}

func NewLocalLog(capacity int) *LocalLog {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &LocalLog{capacity: capacity}
}

func (l *LocalLog) Append(entries ...*models.MessageLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = appendBounded(l.entries, l.capacity, entries...)
}

func (l *LocalLog) AppendRun(run *models.WorkflowRun) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = appendBounded(l.runs, l.capacity, run)
}

// Recent returns up to limit entries, newest first.
func (l *LocalLog) Recent(limit int) []*models.MessageLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.entries, limit)
}

// Runs returns up to limit finalized runs, newest first.
func (l *LocalLog) Runs(limit int) []*models.WorkflowRun {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return newestFirst(l.runs, limit)
}

func (l *LocalLog) Run(runID string) (*models.WorkflowRun, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.runs {
		if r.ID == runID {
			return r, true
		}
	}
	return nil, false
}

// RunEntries returns the retained entries of one run in record order.
func (l *LocalLog) RunEntries(runID string) []*models.MessageLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.MessageLogEntry
	for _, e := range l.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordIndex < out[j].RecordIndex })
	return out
}

func (l *LocalLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func appendBounded[T any](items []T, capacity int, add ...T) []T {
	items = append(items, add...)
	if over := len(items) - capacity; over > 0 {
		items = append(items[:0:0], items[over:]...)
	}
	return items
}

func newestFirst[T any](items []T, limit int) []T {
	n := len(items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, items[i])
	}
	return out
}
