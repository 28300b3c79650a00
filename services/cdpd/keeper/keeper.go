// Package keeper runs the periodic maintenance that keeps the engine
// current: fee accrual, price refresh, liquidations and auction resets.
package keeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp"
	telemetry "cdpvault/observability/otel"
)

// Engine is the part of cdp.System the keeper drives.
type Engine interface {
	Ilks() []string
	Drip(caller common.Address, ilk string) (*uint256.Int, error)
	Poke(caller common.Address, ilk string) error
	UnsafeUrns(ilk string) ([]common.Address, error)
	Bark(caller common.Address, ilk string, urn, kpr common.Address) (uint64, error)
	Auctions(ilk string) ([]cdp.AuctionView, error)
	Redo(caller common.Address, ilk string, id uint64, kpr common.Address) error
}

// Report summarizes one pass.
type Report struct {
	Dripped int
	Poked   int
	Barked  int
	Redone  int
	Errors  int
}

// Changed reports whether the pass mutated engine state.
func (r Report) Changed() bool {
	return r.Dripped+r.Poked+r.Barked+r.Redone > 0
}

type Keeper struct {
	engine   Engine
	self     common.Address
	interval time.Duration
	logger   *slog.Logger
	onPass   func(Report)
	passes   metric.Int64Counter
	actions  metric.Int64Counter
}

// New returns a keeper acting as self. onPass, if set, runs after every
// pass that changed state.
func New(engine Engine, self common.Address, interval time.Duration, logger *slog.Logger, onPass func(Report)) *Keeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	meter := telemetry.Meter("cdpvault/keeper")
	passes, _ := meter.Int64Counter("cdp.keeper.passes", metric.WithDescription("Keeper passes run."))
	actions, _ := meter.Int64Counter("cdp.keeper.actions", metric.WithDescription("Keeper actions by kind."))
	return &Keeper{
		engine: engine, self: self, interval: interval, logger: logger, onPass: onPass,
		passes: passes, actions: actions,
	}
}

// Run ticks until ctx is done.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	k.logger.Info("keeper started", "address", k.self.Hex(), "interval", k.interval)
	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper stopped")
			return
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick runs one pass over every collateral type.
func (k *Keeper) Tick(ctx context.Context) Report {
	ctx, span := telemetry.Tracer("cdpvault/keeper").Start(ctx, "keeper.tick")
	defer span.End()

	var report Report
	for _, ilk := range k.engine.Ilks() {
		if ctx.Err() != nil {
			break
		}
		k.tickIlk(ilk, &report)
	}
	span.SetAttributes(
		attribute.Int("barked", report.Barked),
		attribute.Int("redone", report.Redone),
		attribute.Int("errors", report.Errors),
	)
	if k.passes != nil {
		k.passes.Add(ctx, 1)
		k.actions.Add(ctx, int64(report.Barked), metric.WithAttributes(attribute.String("kind", "bark")))
		k.actions.Add(ctx, int64(report.Redone), metric.WithAttributes(attribute.String("kind", "redo")))
	}
	if report.Changed() && k.onPass != nil {
		k.onPass(report)
	}
	return report
}

func (k *Keeper) tickIlk(ilk string, report *Report) {
	if _, err := k.engine.Drip(k.self, ilk); k.check("drip", ilk, err, report) {
		report.Dripped++
	}
	if err := k.engine.Poke(k.self, ilk); k.check("poke", ilk, err, report) {
		report.Poked++
	}
	unsafe, err := k.engine.UnsafeUrns(ilk)
	if !k.check("scan", ilk, err, report) {
		return
	}
	for _, urn := range unsafe {
		id, err := k.engine.Bark(k.self, ilk, urn, k.self)
		if k.check("bark", ilk, err, report) {
			report.Barked++
			k.logger.Info("keeper barked", "ilk", ilk, "urn", urn.Hex(), "auction", id)
			continue
		}
		if cdperrors.IsTransient(err) {
			break
		}
	}
	sales, err := k.engine.Auctions(ilk)
	if !k.check("auctions", ilk, err, report) {
		return
	}
	for _, sale := range sales {
		if !sale.NeedsRedo {
			continue
		}
		if err := k.engine.Redo(k.self, ilk, sale.ID, k.self); k.check("redo", ilk, err, report) {
			report.Redone++
		}
	}
}

// check logs err and reports whether the step succeeded. Transient
// rejections are expected and logged at debug.
func (k *Keeper) check(op, ilk string, err error, report *Report) bool {
	if err == nil {
		return true
	}
	if cdperrors.IsTransient(err) {
		k.logger.Debug("keeper step skipped", "op", op, "ilk", ilk, "error", err)
		return false
	}
	report.Errors++
	k.logger.Warn("keeper step failed", "op", op, "ilk", ilk, "error", err)
	return false
}
