package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/sipeed/picobot/pkg/bus"
)

// FormatHelpMessage renders one line per command.
func FormatHelpMessage(defs []Definition) string {
	if len(defs) == 0 {
		return "No commands available."
	}

	lines := make([]string, 0, len(defs))
	for _, def := range defs {
		usage := def.Usage
		if usage == "" {
			usage = "/" + def.Name
		}
		desc := def.Description
		if desc == "" {
			desc = "No description"
		}
		line := fmt.Sprintf("%s - %s", usage, desc)
		if len(def.Aliases) > 0 {
			line += fmt.Sprintf(" (also: %s)", strings.Join(def.Aliases, ", "))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ReplyTo builds a plain-text reply to the request's originating message.
func ReplyTo(req Request, text string) bus.Reply {
	switch e := req.Event.(type) {
	case *bus.TextMessage:
		return &bus.NewMessage{ChatID: e.ChatID, Text: text, ReplyTo: e.MessageID}
	case *bus.CallbackEvent:
		return &bus.NewMessage{ChatID: e.ChatID, Text: text}
	default:
		return nil
	}
}

// Help lists the registry it is registered in.
type Help struct {
	reg *Registry
}

func NewHelp() *Help { return &Help{} }

func (*Help) Name() string        { return "help" }
func (*Help) Description() string { return "Show this help message" }
func (*Help) Usage() string       { return "/help" }

func (h *Help) bindRegistry(r *Registry) { h.reg = r }

func (h *Help) Handle(_ context.Context, req Request) (bus.Reply, error) {
	if h.reg == nil {
		return nil, Internal("help", fmt.Errorf("registry not bound"))
	}
	return ReplyTo(req, FormatHelpMessage(h.reg.Definitions())), nil
}

// Start greets the user.
type Start struct {
	Greeting string
}

func NewStart(greeting string) *Start {
	if greeting == "" {
		greeting = "Hello! I am PicoBot. Send /help to see what I can do."
	}
	return &Start{Greeting: greeting}
}

func (*Start) Name() string        { return "start" }
func (*Start) Description() string { return "Start the bot" }

func (s *Start) Handle(_ context.Context, req Request) (bus.Reply, error) {
	return ReplyTo(req, s.Greeting), nil
}
