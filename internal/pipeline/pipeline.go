package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Pipeline struct {
	stages []Stage
	config *PipelineConfig
}

type PipelineConfig struct {
	WorkersPerStage   int
	ChannelBufferSize int
}

func NewPipeline(stages []Stage, config *PipelineConfig) *Pipeline {
	return &Pipeline{
		stages: stages,
		config: config,
	}
}

// Run feeds msgs through every stage and hands each finished message to
// collect, which is only ever called from one goroutine. Run returns after
// the last message has been collected.
func (p *Pipeline) Run(ctx context.Context, msgs []Message, collect func(Message)) error {
	channels := make([]chan Message, len(p.stages)+1)
	for i := range channels {
		channels[i] = make(chan Message, p.config.ChannelBufferSize)
	}

	var g errgroup.Group

	for i, stage := range p.stages {
		s, in, out := stage, channels[i], channels[i+1]
		g.Go(func() error {
			s.Run(ctx, in, out)
			return nil
		})
	}

	g.Go(func() error {
		feedMessages(msgs, channels[0])
		return nil
	})

	g.Go(func() error {
		for msg := range channels[len(channels)-1] {
			collect(msg)
		}
		return nil
	})

	return g.Wait()
}

func feedMessages(msgs []Message, outChan chan<- Message) {
	defer close(outChan)
	for _, msg := range msgs {
		outChan <- msg
	}
}
