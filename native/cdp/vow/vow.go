// Package vow settles system debt and surplus. Bad debt taken over by
// liquidations sits in a time-stamped queue until released, and may then be
// cancelled against the stable balance earned from fees and auctions.
package vow

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

const moduleName = "vow"

// Ledger is the slice of the vat the vow needs.
type Ledger interface {
	Stable(usr common.Address) *uint256.Int
	Sin(usr common.Address) *uint256.Int
	Heal(caller common.Address, rad *uint256.Int) error
	Move(caller, src, dst common.Address, rad *uint256.Int) error
}

// Vow holds system surplus and debt on the ledger under its own address.
type Vow struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards
	vat     Ledger
	self    common.Address
	clock   nativecommon.Clock

	queue map[uint64]*uint256.Int // queued debt by era [rad]
	total *uint256.Int            // sum of the queue [rad]
	wait  uint64                  // queue delay in seconds
	bump  *uint256.Int            // fixed surplus lot [rad]
	hump  *uint256.Int            // surplus buffer kept back [rad]
	sink  common.Address
	live  bool
}

func New(journal *nativecommon.Journal, ledger Ledger, clock nativecommon.Clock, self, deployer common.Address) *Vow {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	return &Vow{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName, deployer),
		vat:     ledger,
		self:    self,
		clock:   clock,
		queue:   make(map[uint64]*uint256.Int),
		total:   new(uint256.Int),
		bump:    new(uint256.Int),
		hump:    new(uint256.Int),
		live:    true,
	}
}

func (v *Vow) atomic(op string, fn func() error) error {
	if err := v.journal.Atomic(fn); err != nil {
		return fmt.Errorf("vow: %s: %w", op, err)
	}
	return nil
}

func (v *Vow) Rely(caller, usr common.Address) error {
	return v.atomic("rely", func() error { return v.wards.Rely(v.journal, caller, usr) })
}

func (v *Vow) Deny(caller, usr common.Address) error {
	return v.atomic("deny", func() error { return v.wards.Deny(v.journal, caller, usr) })
}

// File sets "wait" [seconds], "bump" or "hump" [rad].
func (v *Vow) File(caller common.Address, what string, data *uint256.Int) error {
	return v.atomic("file", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		data := fixed.Value(data)
		switch what {
		case "wait":
			if !data.IsUint64() {
				return cdperrors.ErrInvalidParam
			}
			nativecommon.Assign(v.journal, &v.wait, data.Uint64())
		case "bump":
			nativecommon.Assign(v.journal, &v.bump, data)
		case "hump":
			nativecommon.Assign(v.journal, &v.hump, data)
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		v.journal.Emit(events.ParamUpdated{Module: moduleName, Key: what, Value: data.Dec()})
		return nil
	})
}

// SetSink sets the account receiving flapped surplus.
func (v *Vow) SetSink(caller, sink common.Address) error {
	return v.atomic("file", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(v.journal, &v.sink, sink)
		v.journal.Emit(events.ParamUpdated{Module: moduleName, Key: "sink", Value: sink.Hex()})
		return nil
	})
}

// Cage stops surplus release.
func (v *Vow) Cage(caller common.Address) error {
	return v.atomic("cage", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(v.journal, &v.live, false)
		v.journal.Emit(events.ModuleCaged{Module: moduleName})
		return nil
	})
}

// Fess queues tab of bad debt under the current era.
func (v *Vow) Fess(caller common.Address, tab *uint256.Int) error {
	return v.atomic("fess", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		era := v.clock.Now()
		queued, err := fixed.Add(v.queue[era], tab)
		if err != nil {
			return err
		}
		total, err := fixed.Add(v.total, tab)
		if err != nil {
			return err
		}
		nativecommon.AssignKey(v.journal, v.queue, era, queued)
		nativecommon.Assign(v.journal, &v.total, total)
		v.journal.Emit(events.DebtQueued{Era: era, Tab: fixed.Value(tab)})
		return nil
	})
}

// Flog releases the debt queued at era once wait has passed, making it
// available to Heal.
func (v *Vow) Flog(caller common.Address, era uint64) error {
	return v.atomic("flog", func() error {
		if era+v.wait > v.clock.Now() {
			return fmt.Errorf("era %d: %w", era, cdperrors.ErrStale)
		}
		tab := fixed.Value(v.queue[era])
		total, err := fixed.Sub(v.total, tab)
		if err != nil {
			return err
		}
		nativecommon.Assign(v.journal, &v.total, total)
		nativecommon.DeleteKey(v.journal, v.queue, era)
		v.journal.Emit(events.DebtReleased{Era: era, Tab: tab})
		return nil
	})
}

// Heal cancels rad of released debt against surplus.
func (v *Vow) Heal(caller common.Address, rad *uint256.Int) error {
	return v.atomic("heal", func() error {
		if rad == nil || rad.IsZero() {
			return cdperrors.ErrInvalidParam
		}
		if v.vat.Stable(v.self).Lt(rad) {
			return cdperrors.ErrInsufficientSurplus
		}
		if v.releasedDebt().Lt(rad) {
			return cdperrors.ErrInsufficientDebt
		}
		return v.vat.Heal(v.self, rad)
	})
}

// Flap sends a lot of surplus to the sink. The lot is bump, or everything
// above hump when bump is zero. It requires all debt to be healed first.
func (v *Vow) Flap(caller common.Address) (*uint256.Int, error) {
	var lot *uint256.Int
	err := v.atomic("flap", func() error {
		if !v.live {
			return cdperrors.ErrNotLive
		}
		if v.sink == (common.Address{}) {
			return fmt.Errorf("no sink: %w", cdperrors.ErrUnavailable)
		}
		if !v.vat.Sin(v.self).IsZero() {
			return cdperrors.ErrDebtOutstanding
		}
		surplus := v.vat.Stable(v.self)
		reserve, err := fixed.Add(v.bump, v.hump)
		if err != nil {
			return err
		}
		if surplus.Lt(reserve) {
			return cdperrors.ErrInsufficientSurplus
		}
		lot = fixed.Value(v.bump)
		if lot.IsZero() {
			lot = new(uint256.Int).Sub(surplus, v.hump)
		}
		if lot.IsZero() {
			return cdperrors.ErrInsufficientSurplus
		}
		if err := v.vat.Move(v.self, v.self, v.sink, lot); err != nil {
			return err
		}
		v.journal.Emit(events.SurplusFlapped{Sink: v.sink, Amount: fixed.Value(lot)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

// releasedDebt is the vow's sin no longer held in the queue.
func (v *Vow) releasedDebt() *uint256.Int {
	sin := v.vat.Sin(v.self)
	if sin.Lt(v.total) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(sin, v.total)
}

// Queued returns the debt queued at era [rad].
func (v *Vow) Queued(era uint64) *uint256.Int { return fixed.Value(v.queue[era]) }

// QueuedTotal returns the sum of the queue [rad].
func (v *Vow) QueuedTotal() *uint256.Int { return fixed.Value(v.total) }

// Eras returns the queued eras in ascending order.
func (v *Vow) Eras() []uint64 {
	out := make([]uint64, 0, len(v.queue))
	for era := range v.queue {
		out = append(out, era)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Released returns the debt available to Heal [rad].
func (v *Vow) Released() *uint256.Int { return v.releasedDebt() }

func (v *Vow) Wait() uint64            { return v.wait }
func (v *Vow) Sink() common.Address    { return v.sink }
func (v *Vow) Address() common.Address { return v.self }
func (v *Vow) Live() bool              { return v.live }

type QueueEntry struct {
	Era uint64
	Tab *uint256.Int
}

// Snapshot holds the persisted vow state.
type Snapshot struct {
	Wards []common.Address
	Live  bool
	Wait  uint64
	Bump  *uint256.Int
	Hump  *uint256.Int
	Sink  common.Address
	Queue []QueueEntry
}

func (v *Vow) Export() Snapshot {
	snap := Snapshot{
		Wards: v.wards.List(), Live: v.live, Wait: v.wait,
		Bump: fixed.Value(v.bump), Hump: fixed.Value(v.hump), Sink: v.sink,
	}
	for _, era := range v.Eras() {
		snap.Queue = append(snap.Queue, QueueEntry{Era: era, Tab: fixed.Value(v.queue[era])})
	}
	return snap
}

func (v *Vow) Restore(snap Snapshot) {
	v.wards.Restore(snap.Wards)
	v.live = snap.Live
	v.wait = snap.Wait
	v.bump = fixed.Value(snap.Bump)
	v.hump = fixed.Value(snap.Hump)
	v.sink = snap.Sink
	v.queue = make(map[uint64]*uint256.Int, len(snap.Queue))
	v.total = new(uint256.Int)
	for _, entry := range snap.Queue {
		tab := fixed.Value(entry.Tab)
		v.queue[entry.Era] = tab
		v.total.Add(v.total, tab)
	}
}
