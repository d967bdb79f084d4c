// Package ledger records per-record outcomes and the final run aggregate,
// durably when the store is reachable and in a bounded local log otherwise.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/state"
	"github.com/google/uuid"
)

var ErrAlreadyFinalized = errors.New("run already finalized")

// PersistenceDegradation reports that the durable store could not be used.
// The run itself is unaffected.
type PersistenceDegradation struct {
	RunID string
	Err   error
}

func (e *PersistenceDegradation) Error() string {
	return fmt.Sprintf("persistence degraded for run %s: %v", e.RunID, e.Err)
}

func (e *PersistenceDegradation) Unwrap() error {
	return e.Err
}

const defaultPingTimeout = 3 * time.Second

type Ledger struct {
	store       state.Store
	local       *LocalLog
	pingTimeout time.Duration
}

// New builds a ledger. store may be nil, in which case every run is local.
func New(store state.Store, local *LocalLog) *Ledger {
	if local == nil {
		local = NewLocalLog(DefaultLocalCapacity)
	}
	return &Ledger{
		store:       store,
		local:       local,
		pingTimeout: defaultPingTimeout,
	}
}

func (l *Ledger) Local() *LocalLog {
	return l.local
}

// sink is where a run's outcomes end up. Begin picks one per run.
type sink interface {
	mode() models.PersistenceMode
	// record is called for each terminal entry as it arrives.
	record(entry *models.MessageLogEntry)
	// commit writes the aggregate and the collected entries.
	commit(ctx context.Context, run *models.WorkflowRun, entries []*models.MessageLogEntry) error
}

// localSink keeps entries in the bounded local log as they arrive.
type localSink struct {
	log *LocalLog
}

func (s localSink) mode() models.PersistenceMode { return models.PersistenceLocal }

func (s localSink) record(entry *models.MessageLogEntry) {
	s.log.Append(entry)
}

func (s localSink) commit(_ context.Context, run *models.WorkflowRun, _ []*models.MessageLogEntry) error {
	s.log.AppendRun(run)
	return nil
}

// durableSink holds entries until commit and writes them in one transaction.
type durableSink struct {
	store state.Store
}

func (s durableSink) mode() models.PersistenceMode { return models.PersistenceDurable }

func (s durableSink) record(*models.MessageLogEntry) {}

func (s durableSink) commit(ctx context.Context, run *models.WorkflowRun, entries []*models.MessageLogEntry) error {
	return s.store.CommitRun(ctx, run, entries)
}

// Begin assigns the run its identifier and decides the persistence mode. It
// never fails; an unusable store downgrades the run to local mode.
func (l *Ledger) Begin(ctx context.Context, run *models.WorkflowRun) *RunLedger {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	rl := &RunLedger{
		ledger:       l,
		runID:        run.ID,
		workflowType: run.WorkflowType,
		sink:         localSink{log: l.local},
	}

	if l.store == nil {
		logger.Log.Warn("no durable store configured, using local log", "run_id", run.ID)
		return rl
	}

	pingCtx, cancel := context.WithTimeout(ctx, l.pingTimeout)
	defer cancel()
	if err := l.store.Ping(pingCtx); err != nil {
		rl.degradation = &PersistenceDegradation{RunID: run.ID, Err: err}
		logger.Log.Warn("durable store unavailable, falling back to local log",
			"run_id", run.ID, "error", err)
		return rl
	}
	rl.sink = durableSink{store: l.store}
	return rl
}

// RunLedger collects the outcomes of a single run.
type RunLedger struct {
	ledger       *Ledger
	runID        string
	workflowType string

	mu          sync.Mutex
	sink        sink
	degradation error
	entries     []*models.MessageLogEntry
	finalized   bool
}

func (r *RunLedger) RunID() string {
	return r.runID
}

func (r *RunLedger) Mode() models.PersistenceMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink.mode()
}

// Degradation returns the error that forced local mode, if any.
func (r *RunLedger) Degradation() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degradation
}

// Record stores the terminal outcome of rec. It is safe for concurrent use.
func (r *RunLedger) Record(rec *models.CanonicalRecord) (*models.MessageLogEntry, error) {
	if !rec.Stage.Terminal() {
		return nil, fmt.Errorf("record %d is not terminal: %s", rec.Index, rec.Stage)
	}
	entry := r.entryFor(rec)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil, ErrAlreadyFinalized
	}
	r.sink.record(entry)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *RunLedger) entryFor(rec *models.CanonicalRecord) *models.MessageLogEntry {
	ts := rec.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &models.MessageLogEntry{
		ID:             uuid.New().String(),
		RunID:          r.runID,
		WorkflowType:   r.workflowType,
		RecordIndex:    rec.Index,
		Name:           rec.Name,
		Recipient:      rec.Address(rec.Channel),
		Channel:        rec.Channel.DisplayName(),
		Subject:        rec.Subject,
		Body:           rec.Body,
		DeliveryStatus: rec.DeliveryStatus(),
		Error:          rec.Error,
		Timestamp:      ts,
	}
}

// Entries returns the recorded entries in record order.
func (r *RunLedger) Entries() []*models.MessageLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.MessageLogEntry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordIndex < out[j].RecordIndex })
	return out
}

// Finalize writes the aggregate. It may be called once. In durable mode the
// run row and all entries go in a single transaction; if that fails the
// entries are kept in the local log and a *PersistenceDegradation is returned.
func (r *RunLedger) Finalize(ctx context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return ErrAlreadyFinalized
	}
	r.finalized = true
	s := r.sink
	r.mu.Unlock()

	run.ID = r.runID
	entries := r.Entries()

	err := s.commit(ctx, run, entries)
	if err == nil {
		return nil
	}

	logger.Log.Warn("failed to commit run, keeping outcomes in local log",
		"run_id", r.runID, "entries", len(entries), "error", err)
	fallback := localSink{log: r.ledger.local}
	for _, e := range entries {
		fallback.record(e)
	}
	_ = fallback.commit(ctx, run, entries)

	degradation := &PersistenceDegradation{RunID: r.runID, Err: err}
	r.mu.Lock()
	r.sink = fallback
	r.degradation = degradation
	r.mu.Unlock()
	return degradation
}
