// Package jug accrues stability fees by compounding each ilk's rate per
// second and crediting the proceeds to the settlement module.
package jug

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/fixed"
	"cdpvault/native/cdp/vat"
	nativecommon "cdpvault/native/common"
)

const moduleName = "jug"

// Ledger is the slice of the vat the jug needs.
type Ledger interface {
	Ilk(ilk string) (vat.Ilk, bool)
	Fold(caller common.Address, ilk string, usr common.Address, delta *big.Int) error
}

type ilkRate struct {
	duty *uint256.Int // per-second fee [ray]
	rho  uint64       // last drip
}

// Jug tracks fee parameters and the last accrual time per ilk.
type Jug struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards
	vat     Ledger
	self    common.Address
	clock   nativecommon.Clock

	ilks map[string]ilkRate
	vow  common.Address
	base *uint256.Int
}

func New(journal *nativecommon.Journal, ledger Ledger, clock nativecommon.Clock, self, deployer common.Address) *Jug {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	return &Jug{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName, deployer),
		vat:     ledger,
		self:    self,
		clock:   clock,
		ilks:    make(map[string]ilkRate),
		base:    new(uint256.Int),
	}
}

func (j *Jug) atomic(op string, fn func() error) error {
	if err := j.journal.Atomic(fn); err != nil {
		return fmt.Errorf("jug: %s: %w", op, err)
	}
	return nil
}

func (j *Jug) Rely(caller, usr common.Address) error {
	return j.atomic("rely", func() error { return j.wards.Rely(j.journal, caller, usr) })
}

func (j *Jug) Deny(caller, usr common.Address) error {
	return j.atomic("deny", func() error { return j.wards.Deny(j.journal, caller, usr) })
}

// Init starts fee accounting for ilk at a duty of one (no fee).
func (j *Jug) Init(caller common.Address, ilk string) error {
	return j.atomic("init", func() error {
		if err := j.wards.Require(caller); err != nil {
			return err
		}
		if _, exists := j.ilks[ilk]; exists {
			return cdperrors.ErrIlkAlreadyInitialized
		}
		nativecommon.AssignKey(j.journal, j.ilks, ilk, ilkRate{duty: fixed.Ray(), rho: j.clock.Now()})
		j.journal.Emit(events.IlkInitialized{Module: moduleName, Ilk: ilk})
		return nil
	})
}

// FileIlk sets "duty" [ray]. The ilk must have been dripped in the current
// second so that past accrual uses the old duty.
func (j *Jug) FileIlk(caller common.Address, ilk, what string, data *uint256.Int) error {
	return j.atomic("file", func() error {
		if err := j.wards.Require(caller); err != nil {
			return err
		}
		cfg, ok := j.ilks[ilk]
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		if what != "duty" {
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		if cfg.rho != j.clock.Now() {
			return fmt.Errorf("drip before changing duty: %w", cdperrors.ErrStale)
		}
		cfg.duty = fixed.Value(data)
		nativecommon.AssignKey(j.journal, j.ilks, ilk, cfg)
		j.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: what, Value: cfg.duty.Dec()})
		return nil
	})
}

// File sets the global "base" fee [ray] added to every ilk's duty.
func (j *Jug) File(caller common.Address, what string, data *uint256.Int) error {
	return j.atomic("file", func() error {
		if err := j.wards.Require(caller); err != nil {
			return err
		}
		if what != "base" {
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		nativecommon.Assign(j.journal, &j.base, fixed.Value(data))
		j.journal.Emit(events.ParamUpdated{Module: moduleName, Key: what, Value: j.base.Dec()})
		return nil
	})
}

// FileVow sets the fee recipient.
func (j *Jug) FileVow(caller common.Address, vow common.Address) error {
	return j.atomic("file", func() error {
		if err := j.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(j.journal, &j.vow, vow)
		j.journal.Emit(events.ParamUpdated{Module: moduleName, Key: "vow", Value: vow.Hex()})
		return nil
	})
}

// Drip compounds the fee of ilk since the last drip and returns the new
// rate. Calling it twice in the same second changes nothing.
func (j *Jug) Drip(caller common.Address, ilk string) (*uint256.Int, error) {
	var rate *uint256.Int
	err := j.atomic("drip", func() error {
		cfg, ok := j.ilks[ilk]
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		now := j.clock.Now()
		if now < cfg.rho {
			return fmt.Errorf("clock behind last drip: %w", cdperrors.ErrInvalidParam)
		}
		rec, ok := j.vat.Ilk(ilk)
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		perSecond, err := fixed.Add(j.base, cfg.duty)
		if err != nil {
			return err
		}
		factor, err := fixed.Rpow(perSecond, now-cfg.rho, fixed.Ray())
		if err != nil {
			return err
		}
		next, err := fixed.Rmul(factor, rec.Rate)
		if err != nil {
			return err
		}
		if err := j.vat.Fold(j.self, ilk, j.vow, fixed.SignedDiff(next, rec.Rate)); err != nil {
			return err
		}
		cfg.rho = now
		nativecommon.AssignKey(j.journal, j.ilks, ilk, cfg)
		j.journal.Emit(events.FeeDripped{Ilk: ilk, Rate: fixed.Value(next), Rho: now})
		rate = next
		return nil
	})
	return rate, err
}

// Duty returns the per-second fee of ilk and the time of its last drip.
func (j *Jug) Duty(ilk string) (*uint256.Int, uint64, bool) {
	cfg, ok := j.ilks[ilk]
	if !ok {
		return new(uint256.Int), 0, false
	}
	return fixed.Value(cfg.duty), cfg.rho, true
}

func (j *Jug) Base() *uint256.Int { return fixed.Value(j.base) }

func (j *Jug) Vow() common.Address { return j.vow }

func (j *Jug) Address() common.Address { return j.self }

func (j *Jug) Ilks() []string {
	out := make([]string, 0, len(j.ilks))
	for name := range j.ilks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type RateEntry struct {
	Ilk  string
	Duty *uint256.Int
	Rho  uint64
}

type Snapshot struct {
	Wards []common.Address
	Vow   common.Address
	Base  *uint256.Int
	Ilks  []RateEntry
}

func (j *Jug) Export() Snapshot {
	snap := Snapshot{Wards: j.wards.List(), Vow: j.vow, Base: fixed.Value(j.base)}
	for _, name := range j.Ilks() {
		cfg := j.ilks[name]
		snap.Ilks = append(snap.Ilks, RateEntry{Ilk: name, Duty: fixed.Value(cfg.duty), Rho: cfg.rho})
	}
	return snap
}

func (j *Jug) Restore(snap Snapshot) {
	j.wards.Restore(snap.Wards)
	j.vow = snap.Vow
	j.base = fixed.Value(snap.Base)
	j.ilks = make(map[string]ilkRate, len(snap.Ilks))
	for _, entry := range snap.Ilks {
		j.ilks[entry.Ilk] = ilkRate{duty: fixed.Value(entry.Duty), rho: entry.Rho}
	}
}
