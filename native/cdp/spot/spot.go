// Package spot turns oracle prices into the risk-adjusted collateral price
// the ledger checks positions against.
package spot

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

const moduleName = "spot"

// Ledger is the slice of the vat the spotter writes to.
type Ledger interface {
	FileIlk(caller common.Address, ilk, what string, data *uint256.Int) error
}

type ilkConfig struct {
	feed Feed
	mat  *uint256.Int
}

// Spotter publishes spot = price / par / mat to the ledger.
type Spotter struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards
	vat     Ledger
	self    common.Address

	ilks map[string]ilkConfig
	par  *uint256.Int
	live bool
}

// New returns a spotter writing to vat as self, with deployer as ward and par
// of one.
func New(journal *nativecommon.Journal, vat Ledger, self, deployer common.Address) *Spotter {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	return &Spotter{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName, deployer),
		vat:     vat,
		self:    self,
		ilks:    make(map[string]ilkConfig),
		par:     fixed.Ray(),
		live:    true,
	}
}

func (s *Spotter) atomic(op string, fn func() error) error {
	if err := s.journal.Atomic(fn); err != nil {
		return fmt.Errorf("spot: %s: %w", op, err)
	}
	return nil
}

func (s *Spotter) Rely(caller, usr common.Address) error {
	return s.atomic("rely", func() error { return s.wards.Rely(s.journal, caller, usr) })
}

func (s *Spotter) Deny(caller, usr common.Address) error {
	return s.atomic("deny", func() error { return s.wards.Deny(s.journal, caller, usr) })
}

func (s *Spotter) admin(caller common.Address) error {
	if err := s.wards.Require(caller); err != nil {
		return err
	}
	if !s.live {
		return cdperrors.ErrNotLive
	}
	return nil
}

// SetFeed installs the oracle for ilk.
func (s *Spotter) SetFeed(caller common.Address, ilk string, feed Feed) error {
	return s.atomic("file", func() error {
		if err := s.admin(caller); err != nil {
			return err
		}
		if feed == nil {
			return cdperrors.ErrInvalidParam
		}
		cfg := s.ilks[ilk]
		cfg.feed = feed
		nativecommon.AssignKey(s.journal, s.ilks, ilk, cfg)
		s.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: "pip", Value: fmt.Sprintf("%T", feed)})
		return nil
	})
}

// File sets "par" [ray], the reference value of one stable unit.
func (s *Spotter) File(caller common.Address, what string, data *uint256.Int) error {
	return s.atomic("file", func() error {
		if err := s.admin(caller); err != nil {
			return err
		}
		switch what {
		case "par":
			if data == nil || data.IsZero() {
				return cdperrors.ErrInvalidParam
			}
			nativecommon.Assign(s.journal, &s.par, fixed.Value(data))
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		s.journal.Emit(events.ParamUpdated{Module: moduleName, Key: what, Value: data.Dec()})
		return nil
	})
}

// FileIlk sets "mat" [ray], the liquidation ratio of ilk.
func (s *Spotter) FileIlk(caller common.Address, ilk, what string, data *uint256.Int) error {
	return s.atomic("file", func() error {
		if err := s.admin(caller); err != nil {
			return err
		}
		switch what {
		case "mat":
			cfg := s.ilks[ilk]
			cfg.mat = fixed.Value(data)
			nativecommon.AssignKey(s.journal, s.ilks, ilk, cfg)
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		s.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: ilk, Key: what, Value: fixed.Value(data).Dec()})
		return nil
	})
}

// Cage stops parameter changes.
func (s *Spotter) Cage(caller common.Address) error {
	return s.atomic("cage", func() error {
		if err := s.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(s.journal, &s.live, false)
		s.journal.Emit(events.ModuleCaged{Module: moduleName})
		return nil
	})
}

// Poke reads the feed of ilk and pushes the derived spot price to the
// ledger. An unusable or zero price fails with ErrUnavailable and leaves the
// last published spot in place.
func (s *Spotter) Poke(caller common.Address, ilk string) error {
	return s.atomic("poke", func() error {
		cfg, ok := s.ilks[ilk]
		if !ok || cfg.feed == nil {
			return fmt.Errorf("no feed for %s: %w", ilk, cdperrors.ErrUnavailable)
		}
		if cfg.mat == nil || cfg.mat.IsZero() {
			return fmt.Errorf("mat unset for %s: %w", ilk, cdperrors.ErrUnavailable)
		}
		val, has := cfg.feed.Peek()
		if !has || val == nil || val.IsZero() {
			return fmt.Errorf("feed for %s: %w", ilk, cdperrors.ErrUnavailable)
		}
		price, err := s.scale(val)
		if err != nil {
			return err
		}
		spot, err := fixed.Rdiv(price, cfg.mat)
		if err != nil {
			return err
		}
		if err := s.vat.FileIlk(s.self, ilk, "spot", spot); err != nil {
			return err
		}
		s.journal.Emit(events.PricePoked{Ilk: ilk, Val: fixed.Value(val), Spot: fixed.Value(spot)})
		return nil
	})
}

// FeedPrice returns the undiscounted collateral price of ilk over par [ray].
func (s *Spotter) FeedPrice(ilk string) (*uint256.Int, error) {
	cfg, ok := s.ilks[ilk]
	if !ok || cfg.feed == nil {
		return nil, fmt.Errorf("spot: no feed for %s: %w", ilk, cdperrors.ErrUnavailable)
	}
	val, has := cfg.feed.Peek()
	if !has || val == nil || val.IsZero() {
		return nil, fmt.Errorf("spot: feed for %s: %w", ilk, cdperrors.ErrUnavailable)
	}
	return s.scale(val)
}

func (s *Spotter) scale(val *uint256.Int) (*uint256.Int, error) {
	scaled, err := fixed.WadToRay(val)
	if err != nil {
		return nil, err
	}
	return fixed.Rdiv(scaled, s.par)
}

// Par returns the reference value of one stable unit [ray].
func (s *Spotter) Par() *uint256.Int { return fixed.Value(s.par) }

// Mat returns the liquidation ratio of ilk [ray].
func (s *Spotter) Mat(ilk string) *uint256.Int { return fixed.Value(s.ilks[ilk].mat) }

// Feed returns the oracle of ilk, if any.
func (s *Spotter) Feed(ilk string) (Feed, bool) {
	cfg, ok := s.ilks[ilk]
	return cfg.feed, ok && cfg.feed != nil
}

// Live reports whether the spotter accepts parameter changes.
func (s *Spotter) Live() bool { return s.live }

// Address is the identity the spotter uses towards the ledger.
func (s *Spotter) Address() common.Address { return s.self }

type MatEntry struct {
	Ilk string
	Mat *uint256.Int
}

// Snapshot is the persisted spotter state. Feeds are runtime wiring and are
// not part of it.
type Snapshot struct {
	Wards []common.Address
	Live  bool
	Par   *uint256.Int
	Mats  []MatEntry
}

func (s *Spotter) Export() Snapshot {
	snap := Snapshot{Wards: s.wards.List(), Live: s.live, Par: fixed.Value(s.par)}
	names := make([]string, 0, len(s.ilks))
	for name := range s.ilks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Mats = append(snap.Mats, MatEntry{Ilk: name, Mat: fixed.Value(s.ilks[name].mat)})
	}
	return snap
}

// Restore loads snap, keeping feeds already wired for the same ilks.
func (s *Spotter) Restore(snap Snapshot) {
	s.wards.Restore(snap.Wards)
	s.live = snap.Live
	s.par = fixed.Value(snap.Par)
	if s.par.IsZero() {
		s.par = fixed.Ray()
	}
	for _, entry := range snap.Mats {
		cfg := s.ilks[entry.Ilk]
		cfg.mat = fixed.Value(entry.Mat)
		s.ilks[entry.Ilk] = cfg
	}
}
