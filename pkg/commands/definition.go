package commands

import (
	"context"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/callback"
)

// Handler is implemented by every command. Handle returns at most one
// reply; a nil reply with a nil error means nothing is sent.
type Handler interface {
	Name() string
	Description() string
	Handle(ctx context.Context, req Request) (bus.Reply, error)
}

// Aliased handlers answer to additional command names.
type Aliased interface {
	Aliases() []string
}

// Namespaced handlers own a callback token namespace and the action codes
// within it. Callback events whose token decodes to that namespace are
// routed to the handler.
type Namespaced interface {
	Namespace() (string, []callback.Code)
}

// Documented handlers provide a usage line for help output.
type Documented interface {
	Usage() string
}

// Continuations lets a handler park itself until the user's next message.
type Continuations interface {
	// Await stores partial as the beginning of the next command line for
	// this handler. The user's next plain text is appended to it and the
	// handler is invoked again with Request.Resumed set.
	Await(ctx context.Context, partial string) error
}

// Request is what the dispatcher hands to a handler.
type Request struct {
	Event bus.Event
	Key   bus.ConversationKey
	// Command is the handler's canonical name.
	Command string
	// Args is the text after the command token, trimmed.
	Args string
	// Action is set for callback events.
	Action *callback.Action
	// Resumed is true when Args was rebuilt from a stored continuation.
	Resumed bool
	Pending Continuations
}

// Text returns the originating text message, or nil for callbacks.
func (r Request) Text() *bus.TextMessage {
	m, _ := r.Event.(*bus.TextMessage)
	return m
}

// Callback returns the originating callback event, or nil for text.
func (r Request) Callback() *bus.CallbackEvent {
	c, _ := r.Event.(*bus.CallbackEvent)
	return c
}

// Definition is the descriptive part of a registered handler, used for
// help output and transport command menus.
type Definition struct {
	Name        string
	Description string
	Usage       string
	Aliases     []string
	Handler     Handler
}
