// Package gateway drives the dispatcher from the message bus with a fixed
// pool of workers.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/logger"
	"github.com/sipeed/picobot/pkg/ratelimit"
)

const (
	DefaultWorkers      = 4
	DefaultEventTimeout = 30 * time.Second
)

type Config struct {
	Workers      int
	EventTimeout time.Duration
}

// Stats counts events since start.
type Stats struct {
	Processed int64
	Failed    int64
	Limited   int64
}

type Engine struct {
	bus        *bus.MessageBus
	dispatcher commands.Dispatching
	limiter    *ratelimit.Limiter
	cfg        Config

	processed atomic.Int64
	failed    atomic.Int64
	limited   atomic.Int64
}

// NewEngine wires the bus to the dispatcher. limiter may be nil.
func NewEngine(mb *bus.MessageBus, d commands.Dispatching, limiter *ratelimit.Limiter, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultEventTimeout
	}
	return &Engine{bus: mb, dispatcher: d, limiter: limiter, cfg: cfg}
}

// Run consumes inbound events until ctx is done or the bus is closed.
func (e *Engine) Run(ctx context.Context) error {
	logger.InfoCF("gateway", "Workers starting", map[string]any{
		"workers":    e.cfg.Workers,
		"timeout_ms": e.cfg.EventTimeout.Milliseconds(),
	})

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				msg, ok := e.bus.ConsumeInbound(ctx)
				if !ok {
					return nil
				}
				e.Process(ctx, msg)
			}
		})
	}
	err := g.Wait()
	logger.InfoCF("gateway", "Workers stopped", map[string]any{
		"processed": e.processed.Load(),
		"failed":    e.failed.Load(),
		"limited":   e.limited.Load(),
	})
	return err
}

// Process handles one event and publishes its reply. Callback events always
// produce an outbound message so the transport can acknowledge the press.
func (e *Engine) Process(ctx context.Context, msg bus.InboundMessage) {
	if msg.Event == nil {
		return
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.NewString()
	}
	key := msg.Event.Key()
	out := bus.OutboundMessage{Channel: msg.Channel, TraceID: msg.TraceID}
	if cb, ok := msg.Event.(*bus.CallbackEvent); ok {
		out.CallbackQueryID = cb.QueryID
	}

	if e.limiter != nil && !e.limiter.AllowEvent(key.UserID) {
		e.limited.Add(1)
		logger.DebugCF("gateway", "Event rate limited", map[string]any{
			"trace_id": msg.TraceID,
			"chat_id":  key.ChatID,
			"user_id":  key.UserID,
		})
		e.publish(ctx, out)
		return
	}

	start := time.Now()
	evCtx, cancel := context.WithTimeout(ctx, e.cfg.EventTimeout)
	res := e.dispatcher.Dispatch(evCtx, msg.Event)
	cancel()

	e.processed.Add(1)
	if res.Err != nil {
		e.failed.Add(1)
	}
	out.Reply = res.Reply

	logger.DebugCF("gateway", "Event handled", map[string]any{
		"trace_id":    msg.TraceID,
		"chat_id":     key.ChatID,
		"user_id":     key.UserID,
		"command":     res.Command,
		"resumed":     res.Resumed,
		"has_reply":   res.Reply != nil,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	e.publish(ctx, out)
}

func (e *Engine) publish(ctx context.Context, out bus.OutboundMessage) {
	if out.Reply == nil && out.CallbackQueryID == "" {
		return
	}
	if !e.bus.PublishOutbound(ctx, out) {
		logger.WarnCF("gateway", "Outbound reply dropped", map[string]any{"trace_id": out.TraceID})
	}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
		Limited:   e.limited.Load(),
	}
}
