package pipeline

import (
	"context"

	"github.com/blagoySimandov/autoflow/internal/logger"
	"github.com/blagoySimandov/autoflow/internal/models"
)

// Message carries one record through the stages together with the run
// parameters each stage needs.
type Message struct {
	RunID        string
	WorkflowType string
	Tone         string
	Context      string
	Channels     models.Channels
	Record       *models.CanonicalRecord
}

// Stage consumes in until it is closed and closes out when all of its
// workers are done. Every message read from in is forwarded to out.
type Stage interface {
	Run(ctx context.Context, inChan <-chan Message, outChan chan<- Message)
	Name() string
}

// transition moves the message's record to the given stage. A rejected move is
// logged and kept as the record's error text.
func transition(msg Message, to models.RecordStage, errMsg *string) {
	rec := msg.Record
	if err := rec.Transition(to, errMsg); err != nil {
		logger.Log.Error("rejected record transition",
			"run_id", msg.RunID,
			"record_index", rec.Index,
			"error", err,
		)
		if rec.Error == nil {
			e := err.Error()
			rec.Error = &e
		}
	}
}
