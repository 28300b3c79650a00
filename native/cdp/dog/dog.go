// Package dog liquidates unsafe positions: it seizes collateral and debt on
// the ledger, queues the bad debt with settlement and starts an auction,
// bounded by global and per-ilk limits on debt under auction.
package dog

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

const moduleName = "dog"

// Ledger is the slice of the vat the dog needs.
type Ledger interface {
	Ilk(ilk string) (vat.Ilk, bool)
	Urn(ilk string, owner common.Address) vat.Urn
	Grab(caller common.Address, ilk string, u, gemDst, sinDst common.Address, dink, dart *big.Int) error
}

// Auctioneer sells seized collateral for one ilk.
type Auctioneer interface {
	Kick(caller common.Address, tab, lot *uint256.Int, usr, kpr common.Address) (uint64, error)
	Ilk() string
	Address() common.Address
}

// Settlement queues the debt taken over by liquidations.
type Settlement interface {
	Fess(caller common.Address, tab *uint256.Int) error
	Address() common.Address
}

type ilkConfig struct {
	clip Auctioneer
	chop *uint256.Int // liquidation penalty [wad]
	hole *uint256.Int // max debt under auction for the ilk [rad]
	dirt *uint256.Int // debt under auction for the ilk [rad]
}

func (c ilkConfig) clone() ilkConfig {
	c.chop = fixed.Value(c.chop)
	c.hole = fixed.Value(c.hole)
	c.dirt = fixed.Value(c.dirt)
	return c
}

// Dog triggers liquidations.
type Dog struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards
	vat     Ledger
	self    common.Address

	vow  Settlement
	ilks map[string]ilkConfig
	hole *uint256.Int // max debt under auction overall [rad]
	dirt *uint256.Int // debt under auction overall [rad]
	live bool
}

func New(journal *nativecommon.Journal, ledger Ledger, vow Settlement, self, deployer common.Address) *Dog {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	return &Dog{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName, deployer),
		vat:     ledger,
		self:    self,
		vow:     vow,
		ilks:    make(map[string]ilkConfig),
		hole:    new(uint256.Int),
		dirt:    new(uint256.Int),
		live:    true,
	}
}

func (d *Dog) atomic(op string, fn func() error) error {
	if err := d.journal.Atomic(fn); err != nil {
		return fmt.Errorf("dog: %s: %w", op, err)
	}
	return nil
}

func (d *Dog) Rely(caller, usr common.Address) error {
	return d.atomic("rely", func() error { return d.wards.Rely(d.journal, caller, usr) })
}

func (d *Dog) Deny(caller, usr common.Address) error {
	return d.atomic("deny", func() error { return d.wards.Deny(d.journal, caller, usr) })
}

// File sets the global limit "Hole" [rad].
func (d *Dog) File(caller common.Address, what string, data *uint256.Int) error {
	return d.atomic("file", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		if what != "Hole" {
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		nativecommon.Assign(d.journal, &d.hole, fixed.Value(data))
		d.journal.Emit(events.ParamUpdated{Module: moduleName, Key: what, Value: d.hole.Dec()})
		return nil
	})
}

// FileIlk sets "chop" [wad, at least one] or "hole" [rad] for ilk.
func (d *Dog) FileIlk(caller common.Address, ilk, what string, data *uint256.Int) error {
	return d.atomic("file", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		cfg := d.ilks[ilk].clone()
		switch what {
		case "chop":
			if data == nil || data.Lt(fixed.Wad()) {
				return fmt.Errorf("chop below one: %w", cdperrors.ErrInvalidParam)
			}
			cfg.chop = fixed.Value(data)
		case "hole":
			cfg.hole = fixed.Value(data)
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		nativecommon.AssignKey(d.journal, d.ilks, ilk, cfg)
		d.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: what, Value: fixed.Value(data).Dec()})
		return nil
	})
}

// SetClipper installs the auctioneer of ilk. It must serve the same ilk.
func (d *Dog) SetClipper(caller common.Address, ilk string, clip Auctioneer) error {
	return d.atomic("file", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		if clip == nil || clip.Ilk() != ilk {
			return fmt.Errorf("clipper ilk mismatch: %w", cdperrors.ErrInvalidParam)
		}
		cfg := d.ilks[ilk].clone()
		cfg.clip = clip
		nativecommon.AssignKey(d.journal, d.ilks, ilk, cfg)
		d.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: "clip", Value: clip.Address().Hex()})
		return nil
	})
}

// SetVow replaces the settlement module.
func (d *Dog) SetVow(caller common.Address, vow Settlement) error {
	return d.atomic("file", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		if vow == nil {
			return cdperrors.ErrInvalidParam
		}
		nativecommon.Assign(d.journal, &d.vow, vow)
		d.journal.Emit(events.ParamUpdated{Module: moduleName, Key: "vow", Value: vow.Address().Hex()})
		return nil
	})
}

// Cage stops new liquidations.
func (d *Dog) Cage(caller common.Address) error {
	return d.atomic("cage", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(d.journal, &d.live, false)
		d.journal.Emit(events.ModuleCaged{Module: moduleName})
		return nil
	})
}

// Bark liquidates the position of urn in ilk, or as much of it as the
// liquidation limits allow, and returns the auction id. kpr receives the
// keeper incentive.
func (d *Dog) Bark(caller common.Address, ilk string, urn, kpr common.Address) (uint64, error) {
	var id uint64
	err := d.atomic("bark", func() error {
		if !d.live {
			return cdperrors.ErrNotLive
		}
		cfg, ok := d.ilks[ilk]
		if !ok || cfg.clip == nil {
			return fmt.Errorf("no clipper for %s: %w", ilk, cdperrors.ErrIlkNotInitialized)
		}
		if cfg.chop == nil || cfg.chop.IsZero() {
			return fmt.Errorf("chop unset for %s: %w", ilk, cdperrors.ErrInvalidParam)
		}
		cfg = cfg.clone()
		rec, ok := d.vat.Ilk(ilk)
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		pos := d.vat.Urn(ilk, urn)
		tab, err := fixed.Mul(pos.Art, rec.Rate)
		if err != nil {
			return err
		}
		limit, err := fixed.Mul(pos.Ink, rec.Spot)
		if err != nil {
			return err
		}
		if rec.Spot.IsZero() || !limit.Lt(tab) {
			return cdperrors.ErrNotUnsafe
		}

		if !d.hole.Gt(d.dirt) || !cfg.hole.Gt(cfg.dirt) {
			return cdperrors.ErrLiquidationLimit
		}
		room := fixed.Min(new(uint256.Int).Sub(d.hole, d.dirt), new(uint256.Int).Sub(cfg.hole, cfg.dirt))
		if room.Lt(rec.Dust) {
			return fmt.Errorf("room below dust: %w", cdperrors.ErrLiquidationLimit)
		}
		scaled, err := fixed.Mul(room, fixed.Wad())
		if err != nil {
			return err
		}
		scaled.Div(scaled, rec.Rate)
		scaled.Div(scaled, cfg.chop)
		dart := fixed.Min(pos.Art, scaled)
		if pos.Art.Gt(dart) {
			rest, err := fixed.Mul(new(uint256.Int).Sub(pos.Art, dart), rec.Rate)
			if err != nil {
				return err
			}
			if rest.Lt(rec.Dust) {
				dart = fixed.Value(pos.Art)
			} else {
				part, err := fixed.Mul(dart, rec.Rate)
				if err != nil {
					return err
				}
				if part.Lt(rec.Dust) {
					return fmt.Errorf("partial liquidation below dust: %w", cdperrors.ErrBelowDust)
				}
			}
		}
		dink, err := fixed.Mul(pos.Ink, dart)
		if err != nil {
			return err
		}
		dink.Div(dink, pos.Art)
		if dink.IsZero() {
			return fmt.Errorf("null auction: %w", cdperrors.ErrInvalidParam)
		}

		clipAddr := cfg.clip.Address()
		if err := d.vat.Grab(d.self, ilk, urn, clipAddr, d.vow.Address(), fixed.Neg(dink), fixed.Neg(dart)); err != nil {
			return err
		}
		due, err := fixed.Mul(dart, rec.Rate)
		if err != nil {
			return err
		}
		if err := d.vow.Fess(d.self, due); err != nil {
			return err
		}
		owed, err := fixed.Wmul(due, cfg.chop)
		if err != nil {
			return err
		}
		dirt, err := fixed.Add(d.dirt, owed)
		if err != nil {
			return err
		}
		if cfg.dirt, err = fixed.Add(cfg.dirt, owed); err != nil {
			return err
		}
		nativecommon.Assign(d.journal, &d.dirt, dirt)
		nativecommon.AssignKey(d.journal, d.ilks, ilk, cfg)

		if id, err = cfg.clip.Kick(d.self, owed, dink, urn, kpr); err != nil {
			return err
		}
		d.journal.Emit(events.Barked{Ilk: ilk, Urn: urn, Ink: dink, Art: dart, Due: due, Clipper: clipAddr, ID: id})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Digs releases rad of liquidation room for ilk as auctions raise funds or
// close.
func (d *Dog) Digs(caller common.Address, ilk string, rad *uint256.Int) error {
	return d.atomic("digs", func() error {
		if err := d.wards.Require(caller); err != nil {
			return err
		}
		cfg := d.ilks[ilk].clone()
		dirt, err := fixed.Sub(d.dirt, rad)
		if err != nil {
			return err
		}
		if cfg.dirt, err = fixed.Sub(cfg.dirt, rad); err != nil {
			return err
		}
		nativecommon.Assign(d.journal, &d.dirt, dirt)
		nativecommon.AssignKey(d.journal, d.ilks, ilk, cfg)
		d.journal.Emit(events.RoomRestored{Ilk: ilk, Rad: fixed.Value(rad)})
		return nil
	})
}

// Chop returns the liquidation penalty of ilk [wad].
func (d *Dog) Chop(ilk string) *uint256.Int { return fixed.Value(d.ilks[ilk].chop) }

// IlkRoom returns the per-ilk limit and debt currently under auction [rad].
func (d *Dog) IlkRoom(ilk string) (hole, dirt *uint256.Int) {
	cfg := d.ilks[ilk].clone()
	return cfg.hole, cfg.dirt
}

// Room returns the global limit and debt currently under auction [rad].
func (d *Dog) Room() (hole, dirt *uint256.Int) { return fixed.Value(d.hole), fixed.Value(d.dirt) }

// Live reports whether liquidations are enabled.
func (d *Dog) Live() bool { return d.live }

// Address is the identity the dog uses towards the other modules.
func (d *Dog) Address() common.Address { return d.self }

type IlkEntry struct {
	Ilk  string
	Chop *uint256.Int
	Hole *uint256.Int
	Dirt *uint256.Int
}

// Snapshot holds the persisted dog state. Clippers are wiring and are
// reattached by the owner of the system.
type Snapshot struct {
	Wards []common.Address
	Live  bool
	Hole  *uint256.Int
	Dirt  *uint256.Int
	Ilks  []IlkEntry
}

func (d *Dog) Export() Snapshot {
	snap := Snapshot{Wards: d.wards.List(), Live: d.live, Hole: fixed.Value(d.hole), Dirt: fixed.Value(d.dirt)}
	names := make([]string, 0, len(d.ilks))
	for name := range d.ilks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := d.ilks[name].clone()
		snap.Ilks = append(snap.Ilks, IlkEntry{Ilk: name, Chop: cfg.chop, Hole: cfg.hole, Dirt: cfg.dirt})
	}
	return snap
}

func (d *Dog) Restore(snap Snapshot) {
	d.wards.Restore(snap.Wards)
	d.live = snap.Live
	d.hole = fixed.Value(snap.Hole)
	d.dirt = fixed.Value(snap.Dirt)
	for _, entry := range snap.Ilks {
		cfg := d.ilks[entry.Ilk]
		cfg.chop = fixed.Value(entry.Chop)
		cfg.hole = fixed.Value(entry.Hole)
		cfg.dirt = fixed.Value(entry.Dirt)
		d.ilks[entry.Ilk] = cfg
	}
}
