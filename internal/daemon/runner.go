package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caval92/tgd/internal/config"
	"github.com/caval92/tgd/internal/status"
	"github.com/caval92/tgd/internal/store"
	intsync "github.com/caval92/tgd/internal/sync"
	"github.com/caval92/tgd/internal/tg"
)

const tombstonePurgeInterval = 24 * time.Hour

// Runner owns the daemon's background tasks: the startup backfill, the
// live listener, the periodic catch-up loop and tombstone garbage
// collection. All of them write through the same store writer path.
type Runner struct {
	orch     *intsync.Orchestrator
	listener *intsync.Listener
	db       *store.DB
	machine  *status.Machine
	logger   *zap.Logger
	cfg      *config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates the daemon task runner.
func NewRunner(orch *intsync.Orchestrator, listener *intsync.Listener, db *store.DB, machine *status.Machine, logger *zap.Logger, cfg *config.Config) *Runner {
	return &Runner{
		orch:     orch,
		listener: listener,
		db:       db,
		machine:  machine,
		logger:   logger.Named("runner"),
		cfg:      cfg,
	}
}

// Start launches the background tasks.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(ctx)

	if r.cfg.Daemon.BackfillIntervalMin > 0 {
		r.wg.Add(1)
		go r.backfillLoop(ctx, time.Duration(r.cfg.Daemon.BackfillIntervalMin)*time.Minute)
	}
	if r.cfg.Daemon.TombstoneRetentionDays > 0 {
		r.wg.Add(1)
		go r.purgeLoop(ctx)
	}
}

// Stop cancels the tasks and waits for in-flight work to commit.
func (r *Runner) Stop() {
	_ = r.machine.Transition(status.Stopping)
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	_ = r.machine.Transition(status.Idle)
}

// run performs the startup sync and then holds the live subscription
// until shutdown.
func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.Daemon.BackfillOnStart {
		_ = r.machine.Transition(status.Bootstrapping)
		res, err := r.orch.Sync(ctx, intsync.Options{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("startup sync failed", zap.Error(err))
			if tg.IsAuthExpired(err) {
				_ = r.machine.Transition(status.Error)
				return
			}
		} else {
			r.logger.Info("startup sync complete",
				zap.Int("chats", res.Chats),
				zap.Int("new_messages", res.Messages),
				zap.Int("failed_chats", len(res.Failed)))
		}
		_ = r.machine.Transition(status.Incremental)
	}
	_ = r.machine.Transition(status.Listening)

	if err := r.listener.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("listener stopped", zap.Error(err))
		_ = r.machine.Transition(status.Error)
	}
}

// backfillLoop periodically runs an incremental sync alongside the live
// subscription to close any gaps the push stream missed.
func (r *Runner) backfillLoop(ctx context.Context, interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_ = r.machine.Transition(status.Incremental)
		res, err := r.orch.Sync(ctx, intsync.Options{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("periodic backfill failed", zap.Error(err))
		} else if res.Messages > 0 {
			r.logger.Info("periodic backfill complete",
				zap.Int("new_messages", res.Messages))
		}
		_ = r.machine.Transition(status.Listening)
	}
}

// purgeLoop garbage-collects delete tombstones past the retention horizon.
func (r *Runner) purgeLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(tombstonePurgeInterval)
	defer ticker.Stop()

	retention := time.Duration(r.cfg.Daemon.TombstoneRetentionDays) * 24 * time.Hour
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		horizon := time.Now().Add(-retention).UnixMilli()
		purged, err := r.db.PurgeTombstones(horizon)
		if err != nil {
			r.logger.Warn("tombstone purge failed", zap.Error(err))
			continue
		}
		if purged > 0 {
			r.logger.Info("tombstones purged", zap.Int64("count", purged))
		}
	}
}
