package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/blagoySimandov/autoflow/internal/dispatch"
	"github.com/blagoySimandov/autoflow/internal/logging"
	"github.com/blagoySimandov/autoflow/internal/models"
)

type Deliverer interface {
	Dispatch(ctx context.Context, rec *models.CanonicalRecord, channels models.Channels) dispatch.Result
}

type DispatchStage struct {
	dispatcher  Deliverer
	workerCount int
}

func NewDispatchStage(dispatcher Deliverer, workerCount int) *DispatchStage {
	return &DispatchStage{
		dispatcher:  dispatcher,
		workerCount: max(workerCount, 1),
	}
}

func (s *DispatchStage) Name() string {
	return "Dispatch"
}

func (s *DispatchStage) Run(ctx context.Context, inChan <-chan Message, outChan chan<- Message) {
	var wg sync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, inChan, outChan)
	}

	wg.Wait()
	close(outChan)
}

func (s *DispatchStage) worker(ctx context.Context, wg *sync.WaitGroup, in <-chan Message, out chan<- Message) {
	defer wg.Done()

	for msg := range in {
		rec := msg.Record
		if rec.Stage != models.StageContentGenerated {
			out <- msg
			continue
		}

		start := time.Now()
		res := s.dispatcher.Dispatch(ctx, rec, msg.Channels)
		rec.Channel = res.Channel
		rec.Simulated = res.Simulated

		var errMsg *string
		if res.Err != nil {
			e := res.Err.Error()
			errMsg = &e
		}
		transition(msg, res.Stage, errMsg)

		var eventErr error
		if res.Stage == models.StageDeliveryFailed {
			eventErr = res.Err
		}
		logging.EmitRecordEvent(ctx, msg.RunID, rec.Index, s.Name(), string(rec.Stage), time.Since(start), eventErr)
		out <- msg
	}
}
