package reconciler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler drives the engine on a fixed cadence after a warm-up delay.
// Cycles are serialized: a tick arriving while a cycle is still in flight
// is dropped, not queued.
type Scheduler struct {
	lg     *logging.ZapLogger
	cfg    *config.Config
	engine CycleRunner
	lease  Lease

	warmup       time.Duration
	period       time.Duration
	cycleTimeout time.Duration

	busy      sync.Mutex
	cancaller context.CancelFunc
}

func NewScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	lg *logging.ZapLogger,
	engine CycleRunner,
	lease Lease,
) *Scheduler {
	sch := &Scheduler{
		lg:           lg,
		cfg:          cfg,
		engine:       engine,
		lease:        lease,
		warmup:       time.Duration(cfg.ReconcilerWarmupDelay) * time.Millisecond,
		period:       time.Duration(cfg.ReconcilerCyclePeriod) * time.Millisecond,
		cycleTimeout: time.Duration(cfg.ReconcilerCycleTimeout) * time.Millisecond,
	}

	lc.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				sch.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				sch.cancaller()
				return nil
			},
		},
	)

	return sch
}

func (sch *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	sch.cancaller = cancel
	ctx = sch.lg.WithContextFields(ctx, zap.String("name", "reconciler_scheduler"))

	// fail-safe: without a credential every lookup would be rejected,
	// so the loop is not started at all
	if !sch.cfg.VerificationEnabled() {
		sch.lg.InfoCtx(ctx, "verification credential missing, reconciliation disabled")
		return
	}

	sch.lg.DebugCtx(
		ctx,
		"start reconciliation scheduler",
		zap.Duration("warmup", sch.warmup),
		zap.Duration("period", sch.period),
	)

	go sch.run(ctx)
}

func (sch *Scheduler) run(ctx context.Context) {
	warmup := time.NewTimer(sch.warmup)
	defer warmup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-warmup.C:
	}

	sch.tick(ctx)

	ticker := time.NewTicker(sch.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sch.lg.DebugCtx(ctx, "scheduler graceful shutdown")
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *Scheduler) tick(ctx context.Context) {
	if !sch.busy.TryLock() {
		sch.lg.DebugCtx(ctx, "previous cycle still running, tick dropped")
		return
	}
	defer sch.busy.Unlock()

	acquired, err := sch.lease.Acquire(ctx)
	if err != nil {
		sch.lg.ErrorCtx(ctx, "acquire cycle lease error", zap.Error(err))
		return
	}

	if !acquired {
		sch.lg.DebugCtx(ctx, "cycle lease held by another instance, tick dropped")
		return
	}
	defer sch.lease.Release(ctx)

	// watchdog: a hung cycle must not block the single-flight guard forever
	cctx, cancel := context.WithTimeout(ctx, sch.cycleTimeout)
	defer cancel()

	if err := sch.engine.RunCycle(cctx); err != nil {
		sch.lg.ErrorCtx(ctx, "reconciliation cycle error", zap.Error(err))
	}
}
