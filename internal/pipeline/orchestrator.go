// Package pipeline runs a workflow over a dataset: every record is generated,
// dispatched and recorded, then the run aggregate is finalized once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blagoySimandov/autoflow/internal/dataset"
	"github.com/blagoySimandov/autoflow/internal/ledger"
	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/logging"
	"github.com/blagoySimandov/autoflow/internal/mapper"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/services"
)

const finalizeTimeout = 30 * time.Second

type OrchestratorConfig struct {
	WorkersPerStage   int
	ChannelBufferSize int
	// AbortOnMissingCredential turns a missing AI key into a fatal error
	// instead of failing every record individually.
	AbortOnMissingCredential bool
}

type Orchestrator struct {
	source    dataset.Source
	generator services.IContentGenerator
	ledger    *ledger.Ledger
	pipeline  *Pipeline
	usage     services.IUsageTracker
	config    *OrchestratorConfig
}

type OrchestratorOption func(*Orchestrator)

func WithUsageTracker(usage services.IUsageTracker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.usage = usage
	}
}

func NewOrchestrator(
	source dataset.Source,
	generator services.IContentGenerator,
	dispatcher Deliverer,
	runLedger *ledger.Ledger,
	config *OrchestratorConfig,
	opts ...OrchestratorOption,
) *Orchestrator {
	stages := []Stage{
		NewGenerateStage(generator, config.WorkersPerStage),
		NewDispatchStage(dispatcher, config.WorkersPerStage),
	}
	o := &Orchestrator{
		source:    source,
		generator: generator,
		ledger:    runLedger,
		pipeline: NewPipeline(stages, &PipelineConfig{
			WorkersPerStage:   config.WorkersPerStage,
			ChannelBufferSize: config.ChannelBufferSize,
		}),
		config: config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one workflow. It returns either a complete summary or a
// *FatalRunError; per-record failures never escape.
func (o *Orchestrator) Run(ctx context.Context, req models.RunRequest) (*models.RunSummary, error) {
	if req.WorkflowType == "" {
		return nil, &FatalRunError{Class: ClassGeneric, Err: errors.New("workflow type is required")}
	}
	if req.DatasetHandle == "" {
		return nil, &FatalRunError{Class: ClassDatasetNotFound, Err: errors.New("dataset handle is required")}
	}

	ds, err := dataset.Load(ctx, o.source, req.DatasetHandle)
	if err != nil {
		return nil, classifyDatasetError(err)
	}

	if !o.generator.Configured() && o.config.AbortOnMissingCredential {
		return nil, &FatalRunError{Class: ClassGeneric, Err: services.ErrNoCredential}
	}

	mapping := mapper.Resolve(ds.Headers, models.MappingFromStrings(req.Mapping))
	records := mapper.Normalize(ds, mapping)
	var missing []models.Field
	for _, f := range models.RequiredFields {
		if _, ok := mapping.Header(f); !ok {
			missing = append(missing, f)
		}
	}

	run := &models.WorkflowRun{
		UserID:        req.UserID,
		WorkflowType:  req.WorkflowType,
		DatasetHandle: req.DatasetHandle,
		TotalRecords:  len(records),
		Channels:      req.Channels.Selected(),
		Status:        models.RunStatusRunning,
		StartedAt:     time.Now(),
	}
	rl := o.ledger.Begin(ctx, run)
	runID := rl.RunID()

	ctx = services.ContextWithRunID(ctx, runID)
	logging.EnrichRun(ctx, runID, req.WorkflowType)
	logger.Log.Info("workflow run started",
		"run_id", runID,
		"workflow_type", req.WorkflowType,
		"records", len(records),
		"unmapped_fields", missing,
		"persistence", rl.Mode(),
	)

	msgs := make([]Message, len(records))
	for i, rec := range records {
		msgs[i] = Message{
			RunID:        runID,
			WorkflowType: req.WorkflowType,
			Tone:         req.Tone,
			Context:      req.Context,
			Channels:     req.Channels,
			Record:       rec,
		}
	}

	var t tally
	err = o.pipeline.Run(ctx, msgs, func(msg Message) {
		t.add(msg.Record)
		if _, err := rl.Record(msg.Record); err != nil {
			logger.Log.Error("failed to record outcome", "run_id", runID, "record_index", msg.Record.Index, "error", err)
		}
	})
	if err != nil {
		logger.Log.Error("pipeline returned an error", "run_id", runID, "error", err)
	}

	run.SentCount = t.sent
	run.FailedCount = t.failed
	run.SkippedCount = t.skipped
	run.SimulatedCount = t.simulated
	run.Status = models.ComputeRunStatus(t.sent, t.failed)
	run.SummaryText = summaryText(run)
	run.CompletedAt = time.Now()

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := rl.Finalize(finalizeCtx, run); err != nil {
		var degradation *ledger.PersistenceDegradation
		if !errors.As(err, &degradation) {
			logger.Log.Error("failed to finalize run", "run_id", runID, "error", err)
		}
	}

	summary := &models.RunSummary{
		RunID:          runID,
		WorkflowType:   run.WorkflowType,
		TotalRecords:   run.TotalRecords,
		SentCount:      run.SentCount,
		FailedCount:    run.FailedCount,
		SkippedCount:   run.SkippedCount,
		SimulatedCount: run.SimulatedCount,
		SuccessRate:    successRate(run.SentCount, run.TotalRecords),
		Status:         run.Status,
		SummaryText:    run.SummaryText,
		Persistence:    rl.Mode(),
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
	}
	if o.usage != nil {
		usage := o.usage.RunUsage(runID)
		summary.TokensIn = usage.TokensIn
		summary.TokensOut = usage.TokensOut
		o.usage.Forget(runID)
	}

	logging.EnrichRunOutcome(ctx, string(run.Status), string(summary.Persistence),
		run.TotalRecords, run.SentCount, run.FailedCount, run.SkippedCount)
	logger.Log.Info("workflow run completed",
		"run_id", runID,
		"status", run.Status,
		"sent", run.SentCount,
		"failed", run.FailedCount,
		"skipped", run.SkippedCount,
		"simulated", run.SimulatedCount,
		"duration_ms", run.CompletedAt.Sub(run.StartedAt).Milliseconds(),
	)
	return summary, nil
}

type tally struct {
	sent, failed, skipped, simulated int
}

func (t *tally) add(rec *models.CanonicalRecord) {
	switch rec.Stage {
	case models.StageSent:
		t.sent++
		if rec.Simulated {
			t.simulated++
		}
	case models.StageSkipped:
		t.skipped++
	default:
		t.failed++
	}
}

func successRate(sent, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(sent) / float64(total)
}

func summaryText(run *models.WorkflowRun) string {
	return fmt.Sprintf("Processed %d records for %s: %d sent, %d failed, %d skipped (%.1f%% success).",
		run.TotalRecords, run.WorkflowType, run.SentCount, run.FailedCount, run.SkippedCount,
		successRate(run.SentCount, run.TotalRecords)*100)
}
