package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/channels"
	"github.com/sipeed/picobot/pkg/channels/telegram"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/commands/calc"
	"github.com/sipeed/picobot/pkg/commands/timedelta"
	"github.com/sipeed/picobot/pkg/config"
	"github.com/sipeed/picobot/pkg/cron"
	"github.com/sipeed/picobot/pkg/files"
	"github.com/sipeed/picobot/pkg/gateway"
	"github.com/sipeed/picobot/pkg/logger"
	"github.com/sipeed/picobot/pkg/ratelimit"
	"github.com/sipeed/picobot/pkg/state"
	"github.com/sipeed/picobot/pkg/storage"
	"github.com/sipeed/picobot/pkg/tree"
)

const limiterPruneSchedule = "0 * * * *"

// stores holds the two persistent stores and whatever backs them.
type stores struct {
	pending state.Store
	tree    tree.Store
	db      *sql.DB
}

func (s *stores) Close() error {
	var errs []error
	if s.pending != nil {
		errs = append(errs, s.pending.Close())
	}
	if s.tree != nil {
		errs = append(errs, s.tree.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// openStores opens both stores on one database so a single file holds
// the whole bot state.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return &stores{pending: state.NewMemoryStore(), tree: tree.NewMemoryStore()}, nil
	case config.StorageSQLite:
		db, err := storage.Open(ctx, cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		pending, err := state.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		nodes, err := tree.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &stores{pending: pending, tree: nodes, db: db}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// buildRegistry assembles every command the bot answers to.
func buildRegistry(cfg *config.Config, nodes tree.Store) (*commands.Registry, error) {
	loc, err := cfg.Bot.Location()
	if err != nil {
		return nil, err
	}
	calculator, err := calc.New()
	if err != nil {
		return nil, fmt.Errorf("calc: %w", err)
	}

	renderer := files.NewRenderer(nodes, files.RenderOptions{
		PageSize:  cfg.Files.PageSize,
		NameWidth: cfg.Files.NameWidth,
		Labels:    cfg.Files.Labels,
	})

	return commands.NewRegistry(
		commands.NewStart(cfg.Bot.Greeting),
		commands.NewHelp(),
		files.NewHandler(nodes, renderer, cfg.Files.Prompts),
		calculator,
		timedelta.New(loc),
	)
}

type runner struct {
	cfg        *config.Config
	stores     *stores
	registry   *commands.Registry
	msgBus     *bus.MessageBus
	engine     *gateway.Engine
	limiter    *ratelimit.Limiter
	scheduler  *cron.Scheduler
	channelMgr *channels.Manager
}

// newRunner builds all components without starting any of them. Without
// Telegram the bus has no transport attached.
func newRunner(ctx context.Context, cfg *config.Config, withTelegram bool) (*runner, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening storage: %w", err)
	}

	reg, err := buildRegistry(cfg, st.tree)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error building commands: %w", err)
	}

	msgBus := bus.NewMessageBus(cfg.Gateway.QueueSize)
	dispatcher := commands.NewDispatcher(reg, st.pending, cfg.Speech)
	limiter := ratelimit.NewLimiter(cfg.RateLimits)
	engine := gateway.NewEngine(msgBus, dispatcher, limiter, gateway.Config{
		Workers:      cfg.Gateway.Workers,
		EventTimeout: cfg.Gateway.EventTimeout(),
	})

	scheduler := cron.NewScheduler()
	jobs := []cron.Job{
		gateway.PendingSweepJob(st.pending, cfg.Maintenance.PendingTTL(), cfg.Maintenance.Schedule),
		gateway.LimiterPruneJob(limiter, limiterPruneSchedule),
	}
	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			st.Close()
			return nil, fmt.Errorf("error scheduling %s: %w", job.Name, err)
		}
	}

	channelMgr := channels.NewManager(msgBus)
	if withTelegram {
		tg, err := telegram.NewTelegramChannel(cfg.Telegram, msgBus)
		if err != nil {
			st.Close()
			return nil, err
		}
		tg.SetCommands(reg.Definitions())
		channelMgr.RegisterChannel(tg)
	}

	return &runner{
		cfg:        cfg,
		stores:     st,
		registry:   reg,
		msgBus:     msgBus,
		engine:     engine,
		limiter:    limiter,
		scheduler:  scheduler,
		channelMgr: channelMgr,
	}, nil
}

// run starts every component and blocks until ctx is cancelled.
func (r *runner) run(ctx context.Context, out io.Writer) error {
	if err := r.channelMgr.StartAll(ctx); err != nil {
		return fmt.Errorf("error starting channels: %w", err)
	}
	r.scheduler.Start(ctx)

	fmt.Fprintf(out, "✓ Commands: %d registered\n", len(r.registry.Definitions()))
	fmt.Fprintf(out, "✓ Storage: %s\n", r.cfg.Storage.Driver)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	logger.InfoCF("run", "Bot started", map[string]any{
		"commands": len(r.registry.Definitions()),
		"storage":  r.cfg.Storage.Driver,
		"workers":  r.cfg.Gateway.Workers,
	})

	return r.engine.Run(ctx)
}

// stop releases everything run started. ctx bounds the channel shutdown.
func (r *runner) stop(ctx context.Context) {
	logger.InfoC("run", "Shutting down...")

	r.scheduler.Stop()
	if err := r.channelMgr.StopAll(ctx); err != nil {
		logger.ErrorCF("run", "Error stopping channels", map[string]any{"error": err.Error()})
	}
	r.msgBus.Close()
	if err := r.stores.Close(); err != nil {
		logger.ErrorCF("run", "Error closing storage", map[string]any{"error": err.Error()})
	}

	logger.InfoCF("run", "Shutdown complete", map[string]any{
		"processed": r.engine.Stats().Processed,
	})
}
