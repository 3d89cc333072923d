// Package channels connects chat transports to the message bus.
package channels

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/logger"
)

// Channel is one chat transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// BaseChannel carries the allowlist and bus plumbing shared by transports.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: messageBus, allowList: allowList}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

func (c *BaseChannel) SetRunning(v bool) { c.running.Store(v) }

// IsAllowed matches senderID ("<id>" or "<id>|<username>") against the
// allowlist. Entries are numeric ids, "@username", or the compound form.
// An empty allowlist admits everyone.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	id, username, _ := strings.Cut(senderID, "|")
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if name, ok := strings.CutPrefix(allowed, "@"); ok {
			if username != "" && strings.EqualFold(name, username) {
				return true
			}
			continue
		}
		allowedID, allowedUser, _ := strings.Cut(allowed, "|")
		if allowedID == id {
			return true
		}
		if allowedUser != "" && username != "" && strings.EqualFold(allowedUser, username) {
			return true
		}
	}
	return false
}

// HandleEvent publishes ev when senderID passes the allowlist and reports
// whether it did.
func (c *BaseChannel) HandleEvent(ctx context.Context, senderID string, ev bus.Event) bool {
	if !c.IsAllowed(senderID) {
		logger.DebugCF(c.name, "Event rejected by allowlist", map[string]any{
			"sender_id": senderID,
		})
		return false
	}
	return c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:    c.name,
		Event:      ev,
		ReceivedAt: time.Now(),
	})
}
