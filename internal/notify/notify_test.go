package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/internal/runmanager"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/scheduler/solver"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("队列须持久化")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func finishedRun() runmanager.Run {
	done := time.Date(2025, 3, 1, 8, 5, 0, 0, time.UTC)
	return runmanager.Run{
		ID:          "run-7",
		Status:      runmanager.StatusSucceeded,
		CreatedAt:   done.Add(-5 * time.Minute),
		CompletedAt: &done,
		Result: &solver.Result{
			Status:     "FEASIBLE",
			Solutions:  []*solver.Schedule{{Rank: 1, Objective: 77}, {Rank: 2, Objective: 80}},
			Statistics: &solver.Statistics{Engine: "gophersat", Degraded: true},
		},
	}
}

func TestPublisher_OnlyFinished(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"medsched.runs"}, ch.declared)

	ctx := context.Background()
	run := finishedRun()
	for _, kind := range []runmanager.EventKind{runmanager.EventCreated, runmanager.EventStatus, runmanager.EventProgress} {
		require.NoError(t, p.Notify(ctx, runmanager.Event{Kind: kind, Run: run}))
	}
	assert.Empty(t, ch.published)

	require.NoError(t, p.Notify(ctx, runmanager.Event{Kind: runmanager.EventFinished, Run: run}))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "medsched.runs", ch.keys[0])

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "run-7", msg.MessageId)
	assert.Equal(t, "run.succeeded", msg.Type)

	var body Completion
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "FEASIBLE", body.SolveStatus)
	assert.Equal(t, 2, body.Solutions)
	require.NotNil(t, body.Objective)
	assert.Equal(t, int64(77), *body.Objective)
	assert.True(t, body.Degraded)
	assert.Equal(t, "gophersat", body.Engine)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestCompletionOf_Failed(t *testing.T) {
	run := runmanager.Run{
		ID:     "run-8",
		Status: runmanager.StatusFailed,
		Error:  apperrors.ModelConstruction("变量越界"),
	}
	msg := CompletionOf(run)
	assert.Nil(t, msg.Objective)
	assert.Equal(t, 0, msg.Solutions)
	require.NotNil(t, msg.Error)
	assert.Equal(t, apperrors.CodeModelConstruction, msg.Error.Code)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := NewPublisher(ch, "q", time.Second)
	require.NoError(t, err)

	err = p.Notify(context.Background(), runmanager.Event{Kind: runmanager.EventFinished, Run: finishedRun()})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodePublishError))
}
