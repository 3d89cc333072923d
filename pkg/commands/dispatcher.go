package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"unicode"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/logger"
	"github.com/sipeed/picobot/pkg/state"
)

// ErrUnknownCommand is wrapped in a WrongInput error when no handler
// matches the leading token.
var ErrUnknownCommand = errors.New("unknown command")

// Result describes how one event was handled. Reply is what should be sent,
// already including the canned text for a failure. Err is the handler
// failure, if any, for the caller's bookkeeping.
type Result struct {
	Matched bool
	Command string
	Resumed bool
	Reply   bus.Reply
	Err     error
}

type Dispatching interface {
	Dispatch(ctx context.Context, ev bus.Event) Result
}

type DispatchFunc func(ctx context.Context, ev bus.Event) Result

func (f DispatchFunc) Dispatch(ctx context.Context, ev bus.Event) Result {
	return f(ctx, ev)
}

type Dispatcher struct {
	reg     *Registry
	pending state.Store
	speech  Speech
}

func NewDispatcher(reg *Registry, pending state.Store, speech Speech) *Dispatcher {
	return &Dispatcher{reg: reg, pending: pending, speech: speech.Merge()}
}

// Dispatch routes one event to its handler and returns at most one reply.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.Event) Result {
	var res Result
	switch e := ev.(type) {
	case *bus.TextMessage:
		res = d.dispatchText(ctx, e)
	case *bus.CallbackEvent:
		res = d.dispatchCallback(ctx, e)
	default:
		res = Result{Err: Internal("dispatch", fmt.Errorf("unsupported event %T", ev))}
	}

	if res.Err != nil {
		d.logFailure(ev, res)
		res.Reply = d.failureReply(ev, res.Err)
	}
	return res
}

func (d *Dispatcher) dispatchText(ctx context.Context, msg *bus.TextMessage) Result {
	key := msg.Key()
	text := msg.Text

	var (
		h       Handler
		resumed bool
	)

	p, err := d.pending.Take(ctx, key)
	if err != nil {
		return Result{Err: Internal("take pending", err)}
	}
	if p != nil && !p.Finished {
		resumed = true
		text = p.PartialText + text
		found, ok := d.reg.Lookup(p.CommandID)
		if !ok {
			return Result{Resumed: true, Err: WrongInput("resume "+p.CommandID, ErrUnknownCommand)}
		}
		h = found
	}

	name, mention, args := splitCommand(text)
	if h == nil {
		if name == "" {
			// nothing to route: empty text, or a bare attachment
			return Result{}
		}
		if mention != "" && msg.BotUsername != "" && !strings.EqualFold(mention, msg.BotUsername) {
			return Result{}
		}
		found, ok := d.reg.Lookup(name)
		if !ok {
			return Result{Err: WrongInput("lookup "+name, ErrUnknownCommand)}
		}
		h = found
	}

	req := Request{
		Event:   msg,
		Key:     key,
		Command: h.Name(),
		Args:    args,
		Resumed: resumed,
		Pending: &recorder{store: d.pending, key: key, command: h.Name()},
	}
	reply, err := invoke(ctx, h, req)
	return Result{Matched: true, Command: h.Name(), Resumed: resumed, Reply: reply, Err: err}
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, cb *bus.CallbackEvent) Result {
	action, err := d.reg.Codec().Decode(cb.Data)
	if err != nil {
		return Result{Err: Internal("decode callback", err)}
	}
	h, ok := d.reg.ByNamespace(action.Namespace)
	if !ok {
		return Result{Err: Internal("route callback", fmt.Errorf("no handler for namespace %q", action.Namespace))}
	}

	req := Request{
		Event:   cb,
		Key:     cb.Key(),
		Command: h.Name(),
		Args:    cb.Data,
		Action:  &action,
		Pending: &recorder{store: d.pending, key: cb.Key(), command: h.Name()},
	}
	reply, err := invoke(ctx, h, req)
	return Result{Matched: true, Command: h.Name(), Reply: reply, Err: err}
}

// invoke runs the handler and reports a panic as an internal error.
func invoke(ctx context.Context, h Handler, req Request) (reply bus.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatcher", "Handler panic", map[string]any{
				"command": h.Name(),
				"panic":   fmt.Sprint(r),
				"stack":   string(debug.Stack()),
			})
			reply, err = nil, Internal("panic in "+h.Name(), fmt.Errorf("%v", r))
		}
	}()
	return h.Handle(ctx, req)
}

func (d *Dispatcher) failureReply(ev bus.Event, err error) bus.Reply {
	text := d.speech.For(KindOf(err))
	if errors.Is(err, ErrUnknownCommand) {
		text = d.speech.UnknownCommand
	}
	switch e := ev.(type) {
	case *bus.TextMessage:
		return &bus.NewMessage{ChatID: e.ChatID, Text: text, ReplyTo: e.MessageID}
	case *bus.CallbackEvent:
		return &bus.NewMessage{ChatID: e.ChatID, Text: text}
	default:
		return nil
	}
}

func (d *Dispatcher) logFailure(ev bus.Event, res Result) {
	key := ev.Key()
	fields := map[string]any{
		"chat_id": key.ChatID,
		"user_id": key.UserID,
		"command": res.Command,
		"resumed": res.Resumed,
		"error":   res.Err.Error(),
	}
	if cb, ok := ev.(*bus.CallbackEvent); ok {
		fields["data"] = cb.Data
	}

	if KindOf(res.Err) == KindInternal {
		logger.ErrorCF("dispatcher", "Command failed", fields)
		return
	}
	logger.DebugCF("dispatcher", "Command rejected", fields)
}

type recorder struct {
	store   state.Store
	key     bus.ConversationKey
	command string
}

func (r *recorder) Await(ctx context.Context, partial string) error {
	return r.store.Save(ctx, state.PendingCommand{
		Key:         r.key,
		CommandID:   r.command,
		PartialText: r.command + " " + partial,
	})
}

// splitCommand returns the lowercased command name, the "@botname"
// suffix without the "@", and the rest of the line. A leading "/" is
// dropped.
func splitCommand(text string) (name, mention, args string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", ""
	}
	token, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		token, rest = text[:i], text[i:]
	}

	token = strings.TrimPrefix(token, "/")
	if i := strings.Index(token, "@"); i >= 0 {
		token, mention = token[:i], token[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(token)), mention, strings.TrimSpace(rest)
}

// CommandArgs returns the text after the command token.
func CommandArgs(text string) string {
	_, _, args := splitCommand(text)
	return args
}
