package commands_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/commands/calc"
	"github.com/sipeed/picobot/pkg/state"
)

type echo struct {
	mu    sync.Mutex
	calls []commands.Request
}

func (*echo) Name() string        { return "echo" }
func (*echo) Description() string { return "Echo the arguments" }
func (*echo) Aliases() []string   { return []string{"e"} }

func (e *echo) Handle(_ context.Context, req commands.Request) (bus.Reply, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if req.Args == "fail" {
		return nil, errors.New("boom")
	}
	return commands.ReplyTo(req, req.Args), nil
}

func newDispatcher(t *testing.T, handlers ...commands.Handler) (*commands.Dispatcher, state.Store) {
	t.Helper()
	reg, err := commands.NewRegistry(handlers...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	pending := state.NewMemoryStore()
	return commands.NewDispatcher(reg, pending, commands.Speech{}), pending
}

func TestDispatcher_ScenarioA_CalcContinuation(t *testing.T) {
	c, err := calc.New()
	if err != nil {
		t.Fatalf("calc.New: %v", err)
	}
	d, pending := newDispatcher(t, c)
	ctx := context.Background()
	key := bus.ConversationKey{ChatID: 10, UserID: 20}

	res := d.Dispatch(ctx, &bus.TextMessage{ChatID: 10, UserID: 20, MessageID: 1, Text: "calc"})
	if res.Err != nil || res.Command != "calc" {
		t.Fatalf("first dispatch = %+v", res)
	}
	if msg := res.Reply.(*bus.NewMessage); !strings.Contains(msg.Text, "compute") {
		t.Fatalf("expected a prompt, got %q", msg.Text)
	}
	p, err := pending.Get(ctx, key)
	if err != nil || p == nil || p.CommandID != "calc" {
		t.Fatalf("pending = %+v, err = %v", p, err)
	}

	res = d.Dispatch(ctx, &bus.TextMessage{ChatID: 10, UserID: 20, MessageID: 2, Text: "2+2"})
	if res.Err != nil || !res.Resumed {
		t.Fatalf("second dispatch = %+v", res)
	}
	if got := res.Reply.(*bus.NewMessage).Text; got != "<code>4</code>" {
		t.Fatalf("reply = %q", got)
	}
	if p, _ := pending.Get(ctx, key); p != nil {
		t.Fatalf("pending should be consumed, got %+v", p)
	}
}

func TestDispatcher_MatchSlashAndMention(t *testing.T) {
	h := &echo{}
	d, _ := newDispatcher(t, h)

	for _, text := range []string{"/echo hi", "/echo@my_bot hi", "ECHO hi", "e hi", "/e   hi"} {
		res := d.Dispatch(context.Background(), &bus.TextMessage{ChatID: 1, UserID: 1, Text: text})
		if !res.Matched || res.Err != nil || res.Command != "echo" {
			t.Fatalf("%q: result = %+v", text, res)
		}
		if got := h.calls[len(h.calls)-1].Args; got != "hi" {
			t.Fatalf("%q: args = %q", text, got)
		}
	}
}

type nilMapWriter struct{}

func (nilMapWriter) Name() string        { return "boom" }
func (nilMapWriter) Description() string { return "Always panics" }

func (nilMapWriter) Handle(context.Context, commands.Request) (bus.Reply, error) {
	var m map[string]int
	m["x"] = 1
	return nil, nil
}

func TestDispatcher_HandlerPanicIsInternal(t *testing.T) {
	d, _ := newDispatcher(t, nilMapWriter{})

	res := d.Dispatch(context.Background(), &bus.TextMessage{ChatID: 1, UserID: 1, MessageID: 7, Text: "/boom"})
	if commands.KindOf(res.Err) != commands.KindInternal {
		t.Fatalf("kind = %v, err = %v", commands.KindOf(res.Err), res.Err)
	}
	msg, ok := res.Reply.(*bus.NewMessage)
	if !ok || msg.Text != commands.DefaultSpeech().Internal || msg.ReplyTo != 7 {
		t.Fatalf("reply = %+v", res.Reply)
	}
}

func TestDispatcher_IgnoresCommandsForOtherBots(t *testing.T) {
	h := &echo{}
	d, _ := newDispatcher(t, h)
	ctx := context.Background()

	res := d.Dispatch(ctx, &bus.TextMessage{ChatID: 1, UserID: 1, Text: "/echo@other_bot hi", BotUsername: "my_bot"})
	if res.Matched || res.Reply != nil || res.Err != nil {
		t.Fatalf("foreign mention: result = %+v", res)
	}
	if len(h.calls) != 0 {
		t.Fatalf("handler called %d times", len(h.calls))
	}

	res = d.Dispatch(ctx, &bus.TextMessage{ChatID: 1, UserID: 1, Text: "/echo@My_Bot hi", BotUsername: "my_bot"})
	if !res.Matched || res.Err != nil {
		t.Fatalf("own mention: result = %+v", res)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newDispatcher(t, &echo{})

	res := d.Dispatch(context.Background(), &bus.TextMessage{ChatID: 1, UserID: 1, MessageID: 5, Text: "/nope"})
	if !errors.Is(res.Err, commands.ErrWrongInput) || !errors.Is(res.Err, commands.ErrUnknownCommand) {
		t.Fatalf("err = %v", res.Err)
	}
	msg := res.Reply.(*bus.NewMessage)
	if msg.Text != commands.DefaultSpeech().UnknownCommand || msg.ReplyTo != 5 {
		t.Fatalf("reply = %+v", msg)
	}
}

func TestDispatcher_EmptyTextHasNoReply(t *testing.T) {
	d, _ := newDispatcher(t, &echo{})
	res := d.Dispatch(context.Background(), &bus.TextMessage{ChatID: 1, UserID: 1, Text: "   "})
	if res.Matched || res.Reply != nil || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatcher_UntypedErrorIsInternal(t *testing.T) {
	d, _ := newDispatcher(t, &echo{})
	res := d.Dispatch(context.Background(), &bus.TextMessage{ChatID: 1, UserID: 1, Text: "echo fail"})
	if commands.KindOf(res.Err) != commands.KindInternal {
		t.Fatalf("kind = %v", commands.KindOf(res.Err))
	}
	if res.Reply.(*bus.NewMessage).Text != commands.DefaultSpeech().Internal {
		t.Fatalf("reply = %+v", res.Reply)
	}
}

func TestDispatcher_PendingOverwrite(t *testing.T) {
	h := &echo{}
	d, pending := newDispatcher(t, h)
	ctx := context.Background()
	key := bus.ConversationKey{ChatID: 3, UserID: 4}

	_ = pending.Save(ctx, state.PendingCommand{Key: key, CommandID: "echo", PartialText: "echo first "})
	_ = pending.Save(ctx, state.PendingCommand{Key: key, CommandID: "echo", PartialText: "echo second "})

	res := d.Dispatch(ctx, &bus.TextMessage{ChatID: 3, UserID: 4, Text: "tail"})
	if res.Err != nil || !res.Resumed {
		t.Fatalf("result = %+v", res)
	}
	if got := h.calls[0].Args; got != "second tail" {
		t.Fatalf("args = %q", got)
	}
	if !h.calls[0].Resumed {
		t.Fatalf("request should be marked resumed")
	}
}

func TestDispatcher_FinishedPendingIsNotResumed(t *testing.T) {
	h := &echo{}
	d, pending := newDispatcher(t, h)
	ctx := context.Background()
	key := bus.ConversationKey{ChatID: 3, UserID: 4}
	_ = pending.Save(ctx, state.PendingCommand{Key: key, CommandID: "echo", PartialText: "echo x ", Finished: true})

	res := d.Dispatch(ctx, &bus.TextMessage{ChatID: 3, UserID: 4, Text: "echo fresh"})
	if res.Resumed || h.calls[0].Args != "fresh" {
		t.Fatalf("result = %+v, args = %q", res, h.calls[0].Args)
	}
}

func TestDispatcher_ResumeForRemovedCommand(t *testing.T) {
	d, pending := newDispatcher(t, &echo{})
	ctx := context.Background()
	key := bus.ConversationKey{ChatID: 3, UserID: 4}
	_ = pending.Save(ctx, state.PendingCommand{Key: key, CommandID: "gone", PartialText: "gone "})

	res := d.Dispatch(ctx, &bus.TextMessage{ChatID: 3, UserID: 4, Text: "x"})
	if !errors.Is(res.Err, commands.ErrWrongInput) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestDispatcher_CallbackWithoutNamespace(t *testing.T) {
	d, _ := newDispatcher(t, &echo{})
	res := d.Dispatch(context.Background(), &bus.CallbackEvent{ChatID: 1, UserID: 1, Data: "fsL1"})
	if !errors.Is(res.Err, commands.ErrInternal) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestDispatcher_ConcurrentDoubleTapResumesOnce(t *testing.T) {
	h := &echo{}
	d, pending := newDispatcher(t, h)
	ctx := context.Background()
	key := bus.ConversationKey{ChatID: 8, UserID: 9}
	_ = pending.Save(ctx, state.PendingCommand{Key: key, CommandID: "echo", PartialText: "echo "})

	var wg sync.WaitGroup
	results := make([]commands.Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, &bus.TextMessage{ChatID: 8, UserID: 9, Text: "echo again"})
		}(i)
	}
	wg.Wait()

	resumed := 0
	for _, r := range results {
		if r.Resumed {
			resumed++
		}
	}
	if resumed != 1 {
		t.Fatalf("resumed %d times, want 1", resumed)
	}
}
