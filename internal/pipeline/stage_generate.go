package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/blagoySimandov/autoflow/internal/logging"
	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/services"
)

const generationFailedPrefix = "AI Generation Failed: "

type GenerateStage struct {
	generator   services.IContentGenerator
	workerCount int
}

func NewGenerateStage(generator services.IContentGenerator, workerCount int) *GenerateStage {
	return &GenerateStage{
		generator:   generator,
		workerCount: max(workerCount, 1),
	}
}

func (s *GenerateStage) Name() string {
	return "Generate"
}

func (s *GenerateStage) Run(ctx context.Context, inChan <-chan Message, outChan chan<- Message) {
	var wg sync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, inChan, outChan)
	}

	wg.Wait()
	close(outChan)
}

// worker does not stop on ctx cancellation: a cancelled context makes the
// generator fail fast, so every record still reaches a terminal stage.
func (s *GenerateStage) worker(ctx context.Context, wg *sync.WaitGroup, in <-chan Message, out chan<- Message) {
	defer wg.Done()

	for msg := range in {
		start := time.Now()
		rec := msg.Record

		content, err := s.generator.Generate(ctx, services.GenerationRequest{
			RecipientName:     rec.Name,
			WorkflowType:      msg.WorkflowType,
			Balance:           rec.Balance,
			Tone:              msg.Tone,
			AdditionalContext: msg.Context,
		})
		if err != nil {
			errMsg := generationFailedPrefix + err.Error()
			transition(msg, models.StageGenerationFailed, &errMsg)
		} else {
			rec.Subject = content.Subject
			rec.Body = content.Body
			transition(msg, models.StageContentGenerated, nil)
		}

		logging.EmitRecordEvent(ctx, msg.RunID, rec.Index, s.Name(), string(rec.Stage), time.Since(start), err)
		out <- msg
	}
}
