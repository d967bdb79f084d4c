package pipeline

import (
	"context"
	"testing"

	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStage(stage Stage, msgs ...Message) []Message {
	in := make(chan Message, len(msgs))
	out := make(chan Message, len(msgs))
	for _, m := range msgs {
		in <- m
	}
	close(in)
	stage.Run(context.Background(), in, out)

	var got []Message
	for m := range out {
		got = append(got, m)
	}
	return got
}

func TestTransitionKeepsRejectedMoveAsError(t *testing.T) {
	msg := Message{RunID: "run-1", Record: &models.CanonicalRecord{Stage: models.StageSent}}

	transition(msg, models.StageContentGenerated, nil)

	assert.Equal(t, models.StageSent, msg.Record.Stage)
	require.NotNil(t, msg.Record.Error)
	assert.Contains(t, *msg.Record.Error, "invalid record transition")
}

func TestTransitionKeepsExistingError(t *testing.T) {
	prior := "smtp: timeout"
	msg := Message{Record: &models.CanonicalRecord{Stage: models.StageDeliveryFailed, Error: &prior}}

	transition(msg, models.StageSent, nil)

	require.NotNil(t, msg.Record.Error)
	assert.Equal(t, prior, *msg.Record.Error)
}

func TestGenerateStageReportsRejectedTransition(t *testing.T) {
	stage := NewGenerateStage(&fakeGenerator{configured: true, failFor: map[string]bool{}}, 1)
	rec := &models.CanonicalRecord{Name: "Alice", Stage: models.StageContentGenerated}

	got := runStage(stage, Message{RunID: "run-1", WorkflowType: "Fee Reminder", Record: rec})

	require.Len(t, got, 1)
	assert.Equal(t, models.StageContentGenerated, rec.Stage)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "CONTENT_GENERATED -> CONTENT_GENERATED")
}
