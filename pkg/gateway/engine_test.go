package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/ratelimit"
	"github.com/sipeed/picobot/pkg/state"
)

func echoDispatcher(calls *atomic.Int32) commands.DispatchFunc {
	return func(_ context.Context, ev bus.Event) commands.Result {
		calls.Add(1)
		if m, ok := ev.(*bus.TextMessage); ok {
			return commands.Result{Matched: true, Command: "echo", Reply: &bus.NewMessage{ChatID: m.ChatID, Text: m.Text}}
		}
		return commands.Result{Matched: true, Command: "files"}
	}
}

func TestEngine_RunRoutesReplies(t *testing.T) {
	mb := bus.NewMessageBus(8)
	var calls atomic.Int32
	e := NewEngine(mb, echoDispatcher(&calls), nil, Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.True(t, mb.PublishInbound(ctx, bus.InboundMessage{Channel: "telegram", Event: &bus.TextMessage{ChatID: 1, UserID: 2, Text: "hi"}}))

	wait, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	out, ok := mb.SubscribeOutbound(wait)
	require.True(t, ok)
	assert.Equal(t, "telegram", out.Channel)
	assert.NotEmpty(t, out.TraceID)
	assert.Equal(t, "hi", out.Reply.(*bus.NewMessage).Text)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), e.Stats().Processed)
}

func TestEngine_CallbackIsAlwaysAcknowledged(t *testing.T) {
	mb := bus.NewMessageBus(8)
	var calls atomic.Int32
	e := NewEngine(mb, echoDispatcher(&calls), nil, Config{})

	e.Process(context.Background(), bus.InboundMessage{
		Channel: "telegram",
		TraceID: "trace-1",
		Event:   &bus.CallbackEvent{ChatID: 1, UserID: 2, QueryID: "q-9", Data: "fs"},
	})

	out, ok := mb.SubscribeOutbound(context.Background())
	require.True(t, ok)
	assert.Equal(t, "q-9", out.CallbackQueryID)
	assert.Equal(t, "trace-1", out.TraceID)
	assert.Nil(t, out.Reply)
}

func TestEngine_RateLimited(t *testing.T) {
	mb := bus.NewMessageBus(8)
	var calls atomic.Int32
	limiter := ratelimit.NewLimiter(ratelimit.Config{Enabled: true, UserEventsPerMinute: 1, Burst: 1})
	e := NewEngine(mb, echoDispatcher(&calls), limiter, Config{})

	for i := 0; i < 3; i++ {
		e.Process(context.Background(), bus.InboundMessage{Event: &bus.TextMessage{ChatID: 1, UserID: 2, Text: "x"}})
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(2), e.Stats().Limited)
}

func TestEngine_EventTimeoutReachesHandler(t *testing.T) {
	mb := bus.NewMessageBus(8)
	var sawDeadline atomic.Bool
	d := commands.DispatchFunc(func(ctx context.Context, _ bus.Event) commands.Result {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		return commands.Result{}
	})
	NewEngine(mb, d, nil, Config{EventTimeout: time.Second}).
		Process(context.Background(), bus.InboundMessage{Event: &bus.TextMessage{ChatID: 1, UserID: 1}})
	assert.True(t, sawDeadline.Load())
}

func TestPendingSweepJob(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	old := state.PendingCommand{Key: bus.ConversationKey{ChatID: 1, UserID: 1}, CommandID: "calc", UpdatedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, state.PendingCommand{Key: bus.ConversationKey{ChatID: 1, UserID: 2}, CommandID: "calc"}))

	job := PendingSweepJob(store, time.Hour, "*/10 * * * *")
	require.NoError(t, job.Run(ctx))

	p, err := store.Get(ctx, old.Key)
	require.NoError(t, err)
	assert.Nil(t, p)
	p, err = store.Get(ctx, bus.ConversationKey{ChatID: 1, UserID: 2})
	require.NoError(t, err)
	assert.NotNil(t, p)
}
