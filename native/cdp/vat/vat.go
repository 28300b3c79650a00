// Package vat implements the core CDP ledger: collateral types, positions,
// internal stable and bad-debt balances, and the accounting identities tying
// them together. Every mutating call is all-or-nothing.
package vat

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

const moduleName = "vat"

// Vat holds the ledger state.
type Vat struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards

	can    map[common.Address]map[common.Address]bool
	ilks   map[string]Ilk
	urns   map[string]map[common.Address]Urn
	gem    map[string]map[common.Address]*uint256.Int
	stable map[common.Address]*uint256.Int
	sin    map[common.Address]*uint256.Int

	debt *uint256.Int
	vice *uint256.Int
	line *uint256.Int
	live bool
}

// New returns a live ledger with deployer as its only ward. A nil journal
// gets a private one that discards events.
func New(journal *nativecommon.Journal, deployer common.Address) *Vat {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	return &Vat{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName, deployer),
		can:     make(map[common.Address]map[common.Address]bool),
		ilks:    make(map[string]Ilk),
		urns:    make(map[string]map[common.Address]Urn),
		gem:     make(map[string]map[common.Address]*uint256.Int),
		stable:  make(map[common.Address]*uint256.Int),
		sin:     make(map[common.Address]*uint256.Int),
		debt:    new(uint256.Int),
		vice:    new(uint256.Int),
		line:    new(uint256.Int),
		live:    true,
	}
}

func (v *Vat) atomic(op string, fn func() error) error {
	if err := v.journal.Atomic(fn); err != nil {
		return fmt.Errorf("vat: %s: %w", op, err)
	}
	return nil
}

// Rely authorizes usr.
func (v *Vat) Rely(caller, usr common.Address) error {
	return v.atomic("rely", func() error { return v.wards.Rely(v.journal, caller, usr) })
}

// Deny revokes usr.
func (v *Vat) Deny(caller, usr common.Address) error {
	return v.atomic("deny", func() error { return v.wards.Deny(v.journal, caller, usr) })
}

// IsWard reports whether usr may call privileged operations.
func (v *Vat) IsWard(usr common.Address) bool { return v.wards.IsWard(usr) }

// Hope lets usr modify the caller's positions and balances.
func (v *Vat) Hope(caller, usr common.Address) error {
	return v.atomic("hope", func() error {
		v.setCan(caller, usr, true)
		return nil
	})
}

// Nope withdraws a Hope.
func (v *Vat) Nope(caller, usr common.Address) error {
	return v.atomic("nope", func() error {
		v.setCan(caller, usr, false)
		return nil
	})
}

// CanModify reports whether usr may act on behalf of owner.
func (v *Vat) CanModify(owner, usr common.Address) bool { return v.wish(owner, usr) }

func (v *Vat) wish(owner, usr common.Address) bool {
	return owner == usr || v.can[owner][usr]
}

func (v *Vat) setCan(owner, usr common.Address, allowed bool) {
	inner, ok := v.can[owner]
	if !ok {
		inner = make(map[common.Address]bool)
		v.can[owner] = inner
	}
	if allowed {
		nativecommon.AssignKey(v.journal, inner, usr, true)
	} else {
		nativecommon.DeleteKey(v.journal, inner, usr)
	}
}

// Init registers a collateral type with a rate of one.
func (v *Vat) Init(caller common.Address, ilk string) error {
	return v.atomic("init", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		if _, exists := v.ilks[ilk]; exists {
			return cdperrors.ErrIlkAlreadyInitialized
		}
		nativecommon.AssignKey(v.journal, v.ilks, ilk, Ilk{Rate: fixed.Ray()}.Clone())
		v.journal.Emit(events.IlkInitialized{Module: moduleName, Ilk: ilk})
		return nil
	})
}

// File sets a global parameter. The only key is "Line" [rad].
func (v *Vat) File(caller common.Address, what string, data *uint256.Int) error {
	return v.atomic("file", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		if !v.live {
			return cdperrors.ErrNotLive
		}
		switch what {
		case "Line":
			nativecommon.Assign(v.journal, &v.line, fixed.Value(data))
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		v.journal.Emit(events.ParamUpdated{Module: moduleName, Key: what, Value: fixed.Value(data).Dec()})
		return nil
	})
}

// FileIlk sets a per-ilk parameter: "spot" [ray], "line" [rad] or "dust"
// [rad]. Setting line to zero disables new borrowing against the ilk.
func (v *Vat) FileIlk(caller common.Address, ilk, what string, data *uint256.Int) error {
	return v.atomic("file", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		if !v.live {
			return cdperrors.ErrNotLive
		}
		rec, ok := v.ilks[ilk]
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		rec = rec.Clone()
		switch what {
		case "spot":
			rec.Spot = fixed.Value(data)
		case "line":
			rec.Line = fixed.Value(data)
		case "dust":
			rec.Dust = fixed.Value(data)
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		nativecommon.AssignKey(v.journal, v.ilks, ilk, rec)
		v.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: what, Value: fixed.Value(data).Dec()})
		return nil
	})
}

// Cage freezes the ledger. Afterwards only risk-reducing position changes
// and balance movements are accepted.
func (v *Vat) Cage(caller common.Address) error {
	return v.atomic("cage", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(v.journal, &v.live, false)
		v.journal.Emit(events.ModuleCaged{Module: moduleName})
		return nil
	})
}

// Live reports whether the ledger accepts risk-increasing operations.
func (v *Vat) Live() bool { return v.live }

// Ilk returns a copy of the ilk record.
func (v *Vat) Ilk(ilk string) (Ilk, bool) {
	rec, ok := v.ilks[ilk]
	if !ok {
		return Ilk{}.Clone(), false
	}
	return rec.Clone(), true
}

// Ilks lists registered collateral types in name order.
func (v *Vat) Ilks() []string {
	out := make([]string, 0, len(v.ilks))
	for name := range v.ilks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Urn returns a copy of the position of owner in ilk.
func (v *Vat) Urn(ilk string, owner common.Address) Urn {
	return v.urns[ilk][owner].Clone()
}

// Urns lists owners holding a non-empty position in ilk, in address order.
func (v *Vat) Urns(ilk string) []common.Address {
	inner := v.urns[ilk]
	out := make([]common.Address, 0, len(inner))
	for owner := range inner {
		out = append(out, owner)
	}
	sortAddresses(out)
	return out
}

// Gem returns the free collateral of usr [wad].
func (v *Vat) Gem(ilk string, usr common.Address) *uint256.Int {
	return fixed.Value(v.gem[ilk][usr])
}

// Stable returns the internal stable balance of usr [rad].
func (v *Vat) Stable(usr common.Address) *uint256.Int { return fixed.Value(v.stable[usr]) }

// Sin returns the unbacked debt held by usr [rad].
func (v *Vat) Sin(usr common.Address) *uint256.Int { return fixed.Value(v.sin[usr]) }

// Debt returns total stable issued [rad].
func (v *Vat) Debt() *uint256.Int { return fixed.Value(v.debt) }

// Vice returns total unbacked debt [rad].
func (v *Vat) Vice() *uint256.Int { return fixed.Value(v.vice) }

// Line returns the global debt ceiling [rad].
func (v *Vat) Line() *uint256.Int { return fixed.Value(v.line) }

func sortAddresses(list []common.Address) {
	sort.Slice(list, func(i, k int) bool { return list[i].Cmp(list[k]) < 0 })
}

func orZero(d *big.Int) *big.Int {
	if d == nil {
		return new(big.Int)
	}
	return d
}

// shift applies a signed delta to a balance, reporting short when the
// balance cannot cover a debit.
func shift(x *uint256.Int, d *big.Int, short error) (*uint256.Int, error) {
	d = orZero(d)
	if d.Sign() < 0 && new(big.Int).Neg(d).Cmp(fixed.Value(x).ToBig()) > 0 {
		return nil, short
	}
	return fixed.AddDelta(x, d)
}

func (v *Vat) setUrn(ilk string, owner common.Address, urn Urn) {
	inner, ok := v.urns[ilk]
	if !ok {
		inner = make(map[common.Address]Urn)
		v.urns[ilk] = inner
	}
	if urn.Empty() {
		nativecommon.DeleteKey(v.journal, inner, owner)
		return
	}
	nativecommon.AssignKey(v.journal, inner, owner, urn)
}

func (v *Vat) setGem(ilk string, usr common.Address, wad *uint256.Int) {
	inner, ok := v.gem[ilk]
	if !ok {
		inner = make(map[common.Address]*uint256.Int)
		v.gem[ilk] = inner
	}
	setBalance(v.journal, inner, usr, wad)
}

func setBalance(j *nativecommon.Journal, m map[common.Address]*uint256.Int, usr common.Address, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		nativecommon.DeleteKey(j, m, usr)
		return
	}
	nativecommon.AssignKey(j, m, usr, amount)
}
