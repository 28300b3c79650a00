// Package cdp deploys and wires the stablecoin engine: ledger, price
// gateway, rate accrual, liquidation, auctions and settlement. System is the
// only entry point that is safe for concurrent use; every call runs as one
// atomic, serialized operation.
package cdp

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/abacus"
	"cdpvault/native/cdp/clip"
	"cdpvault/native/cdp/dog"
	"cdpvault/native/cdp/fixed"
	"cdpvault/native/cdp/jug"
	"cdpvault/native/cdp/spot"
	"cdpvault/native/cdp/vat"
	"cdpvault/native/cdp/vow"
	nativecommon "cdpvault/native/common"
)

// Observer receives the outcome of every System operation.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

type Option func(*System)

// WithLogger sets the structured logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver installs an operation observer such as a metrics recorder.
func WithObserver(observer Observer) Option {
	return func(s *System) { s.observer = observer }
}

// WithEmitter sets where committed events are published.
func WithEmitter(emitter events.Emitter) Option {
	return func(s *System) { s.journal.SetEmitter(emitter) }
}

// System owns one deployment of every component.
type System struct {
	mu       sync.Mutex
	journal  *nativecommon.Journal
	clock    nativecommon.Clock
	logger   *slog.Logger
	observer Observer
	gov      common.Address
	wards    *nativecommon.Wards
	self     common.Address

	vat   *vat.Vat
	spot  *spot.Spotter
	jug   *jug.Jug
	dog   *dog.Dog
	vow   *vow.Vow
	clips map[string]*clip.Clipper
	feeds map[string]*spot.ManualFeed
}

// Deploy builds a system from genesis: it creates every component, grants
// the internal authorizations and applies the configured parameters with
// the governor as caller.
func Deploy(gen *Genesis, clock nativecommon.Clock, opts ...Option) (*System, error) {
	if gen == nil {
		return nil, fmt.Errorf("cdp: deploy: %w", cdperrors.ErrInvalidParam)
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	gov := common.HexToAddress(gen.Governor)
	journal := nativecommon.NewJournal(nil)
	ledger := vat.New(journal, gov)
	settlement := vow.New(journal, ledger, clock, nativecommon.ModuleAddress("vow"), gov)
	s := &System{
		journal: journal,
		clock:   clock,
		logger:  slog.Default(),
		gov:     gov,
		wards:   nativecommon.NewWards("system", gov),
		self:    nativecommon.ModuleAddress("join"),
		vat:     ledger,
		spot:    spot.New(journal, ledger, nativecommon.ModuleAddress("spot"), gov),
		jug:     jug.New(journal, ledger, clock, nativecommon.ModuleAddress("jug"), gov),
		vow:     settlement,
		clips:   make(map[string]*clip.Clipper),
		feeds:   make(map[string]*spot.ManualFeed),
	}
	s.dog = dog.New(journal, ledger, settlement, nativecommon.ModuleAddress("dog"), gov)
	for _, opt := range opts {
		opt(s)
	}
	if err := journal.Atomic(func() error { return s.wire(gen) }); err != nil {
		return nil, fmt.Errorf("cdp: deploy: %w", err)
	}
	s.logger.Info("cdp system deployed", "governor", gov.Hex(), "ilks", len(gen.Ilks))
	return s, nil
}

func (s *System) wire(gen *Genesis) error {
	gov := s.gov
	steps := []error{
		s.vat.Rely(gov, s.self),
		s.vat.Rely(gov, s.spot.Address()),
		s.vat.Rely(gov, s.jug.Address()),
		s.vat.Rely(gov, s.dog.Address()),
		s.vow.Rely(gov, s.dog.Address()),
		s.jug.FileVow(gov, s.vow.Address()),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}
	if err := s.fileAmount(gen.Line, fixed.RadDecimals, func(v *uint256.Int) error { return s.vat.File(gov, "Line", v) }); err != nil {
		return err
	}
	if err := s.fileAmount(gen.Par, fixed.RayDecimals, func(v *uint256.Int) error { return s.spot.File(gov, "par", v) }); err != nil {
		return err
	}
	if err := s.fileAmount(gen.Base, fixed.RayDecimals, func(v *uint256.Int) error { return s.jug.File(gov, "base", v) }); err != nil {
		return err
	}
	if err := s.fileAmount(gen.Hole, fixed.RadDecimals, func(v *uint256.Int) error { return s.dog.File(gov, "Hole", v) }); err != nil {
		return err
	}
	if gen.Vow.Wait > 0 {
		if err := s.vow.File(gov, "wait", uint256.NewInt(gen.Vow.Wait)); err != nil {
			return err
		}
	}
	if err := s.fileAmount(gen.Vow.Bump, fixed.RadDecimals, func(v *uint256.Int) error { return s.vow.File(gov, "bump", v) }); err != nil {
		return err
	}
	if err := s.fileAmount(gen.Vow.Hump, fixed.RadDecimals, func(v *uint256.Int) error { return s.vow.File(gov, "hump", v) }); err != nil {
		return err
	}
	if gen.Vow.Sink != "" {
		if err := s.vow.SetSink(gov, common.HexToAddress(gen.Vow.Sink)); err != nil {
			return err
		}
	}
	for _, ilk := range gen.Ilks {
		if err := s.addIlk(ilk); err != nil {
			return fmt.Errorf("ilk %s: %w", ilk.Name, err)
		}
	}
	return nil
}

func (s *System) fileAmount(value string, decimals int, apply func(*uint256.Int) error) error {
	if value == "" {
		return nil
	}
	v, err := amount(value, decimals, nil)
	if err != nil {
		return err
	}
	return apply(v)
}

func (s *System) addIlk(cfg IlkConfig) error {
	gov, name := s.gov, cfg.Name
	calc, err := abacus.New(cfg.Calc.Kind)
	if err != nil {
		return err
	}
	calcParams := map[string]*uint256.Int{}
	switch calc.(type) {
	case *abacus.LinearDecrease:
		calcParams["tau"] = uint256.NewInt(cfg.Calc.Tau)
	case *abacus.StairstepExponentialDecrease:
		calcParams["step"] = uint256.NewInt(cfg.Calc.Step)
	}
	if cfg.Calc.Cut != "" {
		if calcParams["cut"], err = amount(cfg.Calc.Cut, fixed.RayDecimals, nil); err != nil {
			return err
		}
	}
	for key, value := range calcParams {
		if err := calc.File(key, value); err != nil {
			return err
		}
	}

	clipAddr := nativecommon.ModuleAddress("clip/" + name)
	auction := clip.New(s.journal, s.clock, clip.Config{
		Ilk: name, Self: clipAddr, Deployer: gov, Vat: s.vat, Spotter: s.spot, Dog: s.dog,
		Vow: s.vow.Address(), Calc: calc,
	})
	feed := spot.NewManualFeed(s.clock, cfg.MaxPriceAge)
	steps := []error{
		s.vat.Init(gov, name),
		s.jug.Init(gov, name),
		s.vat.Rely(gov, clipAddr),
		s.dog.Rely(gov, clipAddr),
		auction.Rely(gov, s.dog.Address()),
		s.dog.SetClipper(gov, name, auction),
		s.spot.SetFeed(gov, name, feed),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}
	type param struct {
		value    string
		decimals int
		apply    func(*uint256.Int) error
	}
	params := []param{
		{cfg.Line, fixed.RadDecimals, func(v *uint256.Int) error { return s.vat.FileIlk(gov, name, "line", v) }},
		{cfg.Dust, fixed.RadDecimals, func(v *uint256.Int) error { return s.vat.FileIlk(gov, name, "dust", v) }},
		{cfg.Mat, fixed.RayDecimals, func(v *uint256.Int) error { return s.spot.FileIlk(gov, name, "mat", v) }},
		{cfg.Duty, fixed.RayDecimals, func(v *uint256.Int) error { return s.jug.FileIlk(gov, name, "duty", v) }},
		{cfg.Chop, fixed.WadDecimals, func(v *uint256.Int) error { return s.dog.FileIlk(gov, name, "chop", v) }},
		{cfg.Hole, fixed.RadDecimals, func(v *uint256.Int) error { return s.dog.FileIlk(gov, name, "hole", v) }},
		{cfg.Buf, fixed.RayDecimals, func(v *uint256.Int) error { return auction.File(gov, "buf", v) }},
		{cfg.Cusp, fixed.RayDecimals, func(v *uint256.Int) error { return auction.File(gov, "cusp", v) }},
		{cfg.Chip, fixed.WadDecimals, func(v *uint256.Int) error { return auction.File(gov, "chip", v) }},
		{cfg.Tip, fixed.RadDecimals, func(v *uint256.Int) error { return auction.File(gov, "tip", v) }},
	}
	for _, p := range params {
		if err := s.fileAmount(p.value, p.decimals, p.apply); err != nil {
			return err
		}
	}
	if cfg.Tail > 0 {
		if err := auction.File(gov, "tail", uint256.NewInt(cfg.Tail)); err != nil {
			return err
		}
	}
	if err := auction.Upchost(gov); err != nil {
		return err
	}
	nativecommon.AssignKey(s.journal, s.clips, name, auction)
	nativecommon.AssignKey(s.journal, s.feeds, name, feed)
	if cfg.Price != "" {
		price, err := amount(cfg.Price, fixed.WadDecimals, nil)
		if err != nil {
			return err
		}
		if err := feed.Publish(price); err != nil {
			return err
		}
		if err := s.spot.Poke(gov, name); err != nil {
			return err
		}
	}
	return nil
}

// run executes fn as one serialized, atomic operation.
func (s *System) run(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()
	err := s.journal.Atomic(fn)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveOperation(op, err, elapsed)
	}
	switch {
	case err == nil:
		s.logger.Debug("cdp operation", "op", op, "duration", elapsed)
	case cdperrors.IsTransient(err):
		s.logger.Debug("cdp operation rejected", "op", op, "error", err)
	default:
		s.logger.Warn("cdp operation failed", "op", op, "error", err)
	}
	return err
}

func (s *System) clip(ilk string) (*clip.Clipper, error) {
	auction, ok := s.clips[ilk]
	if !ok {
		return nil, fmt.Errorf("cdp: ilk %s: %w", ilk, cdperrors.ErrIlkNotInitialized)
	}
	return auction, nil
}

// Governor returns the deployer address that holds every ward.
func (s *System) Governor() common.Address { return s.gov }

// Now returns the system clock reading.
func (s *System) Now() uint64 { return s.clock.Now() }

// Join credits wad of externally custodied collateral to usr.
func (s *System) Join(caller common.Address, ilk string, usr common.Address, wad *uint256.Int) error {
	return s.run("join", func() error {
		if err := s.wards.Require(caller); err != nil {
			return fmt.Errorf("cdp: join: %w", err)
		}
		return s.vat.Slip(s.self, ilk, usr, fixed.Signed(wad))
	})
}

// Exit removes wad of the caller's free collateral for release outside the
// engine.
func (s *System) Exit(caller common.Address, ilk string, wad *uint256.Int) error {
	return s.run("exit", func() error {
		return s.vat.Slip(s.self, ilk, caller, fixed.Neg(wad))
	})
}

// Frob adjusts the position of u, drawing collateral from v and sending
// minted stable to w.
func (s *System) Frob(caller common.Address, ilk string, u, v, w common.Address, dink, dart *big.Int) error {
	return s.run("frob", func() error { return s.vat.Frob(caller, ilk, u, v, w, dink, dart) })
}

// AdjustPosition adjusts the caller's own position.
func (s *System) AdjustPosition(caller common.Address, ilk string, dink, dart *big.Int) error {
	return s.run("frob", func() error { return s.vat.AdjustPosition(caller, ilk, caller, dink, dart) })
}

func (s *System) Fork(caller common.Address, ilk string, src, dst common.Address, dink, dart *big.Int) error {
	return s.run("fork", func() error { return s.vat.Fork(caller, ilk, src, dst, dink, dart) })
}

func (s *System) MovePosition(caller common.Address, ilk string, src, dst common.Address) error {
	return s.run("fork", func() error { return s.vat.MovePosition(caller, ilk, src, dst) })
}

func (s *System) Hope(caller, usr common.Address) error {
	return s.run("hope", func() error { return s.vat.Hope(caller, usr) })
}

func (s *System) Nope(caller, usr common.Address) error {
	return s.run("nope", func() error { return s.vat.Nope(caller, usr) })
}

// Move transfers internal stable balance.
func (s *System) Move(caller, src, dst common.Address, rad *uint256.Int) error {
	return s.run("move", func() error { return s.vat.Move(caller, src, dst, rad) })
}

// Flux transfers free collateral.
func (s *System) Flux(caller common.Address, ilk string, src, dst common.Address, wad *uint256.Int) error {
	return s.run("flux", func() error { return s.vat.Flux(caller, ilk, src, dst, wad) })
}

// Drip accrues stability fees for ilk and returns the new rate.
func (s *System) Drip(caller common.Address, ilk string) (*uint256.Int, error) {
	var rate *uint256.Int
	err := s.run("drip", func() error {
		var err error
		rate, err = s.jug.Drip(caller, ilk)
		return err
	})
	return rate, err
}

// Poke refreshes the spot price of ilk from its feed.
func (s *System) Poke(caller common.Address, ilk string) error {
	return s.run("poke", func() error { return s.spot.Poke(caller, ilk) })
}

// PublishPrice records a new feed value [wad] for ilk. It does not poke.
func (s *System) PublishPrice(caller common.Address, ilk string, wad *uint256.Int) error {
	return s.run("price", func() error {
		if err := s.wards.Require(caller); err != nil {
			return fmt.Errorf("cdp: price: %w", err)
		}
		feed, ok := s.feeds[ilk]
		if !ok {
			return fmt.Errorf("cdp: price: %s: %w", ilk, cdperrors.ErrIlkNotInitialized)
		}
		return feed.Publish(wad)
	})
}

// Bark liquidates an unsafe position and returns the auction id.
func (s *System) Bark(caller common.Address, ilk string, urn, kpr common.Address) (uint64, error) {
	var id uint64
	err := s.run("bark", func() error {
		var err error
		id, err = s.dog.Bark(caller, ilk, urn, kpr)
		return err
	})
	return id, err
}

// Take buys from a running auction of ilk. A Callee runs inside the same
// atomic operation: its error rolls the whole purchase back, and it must not
// call into s.
func (s *System) Take(caller common.Address, ilk string, req clip.TakeRequest) (clip.TakeResult, error) {
	var result clip.TakeResult
	err := s.run("take", func() error {
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		result, err = auction.Take(caller, req)
		return err
	})
	return result, err
}

// Redo restarts a stale auction of ilk.
func (s *System) Redo(caller common.Address, ilk string, id uint64, kpr common.Address) error {
	return s.run("redo", func() error {
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		return auction.Redo(caller, id, kpr)
	})
}

// Yank cancels an auction of ilk; the collateral goes to the caller.
func (s *System) Yank(caller common.Address, ilk string, id uint64) error {
	return s.run("yank", func() error {
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		return auction.Yank(caller, id)
	})
}

// Upchost refreshes the cached minimum auction size of ilk.
func (s *System) Upchost(caller common.Address, ilk string) error {
	return s.run("upchost", func() error {
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		return auction.Upchost(caller)
	})
}

func (s *System) Heal(caller common.Address, rad *uint256.Int) error {
	return s.run("heal", func() error { return s.vow.Heal(caller, rad) })
}

func (s *System) Flog(caller common.Address, era uint64) error {
	return s.run("flog", func() error { return s.vow.Flog(caller, era) })
}

func (s *System) Flap(caller common.Address) (*uint256.Int, error) {
	var lot *uint256.Int
	err := s.run("flap", func() error {
		var err error
		lot, err = s.vow.Flap(caller)
		return err
	})
	return lot, err
}

// SetParam routes an administrative parameter change by component name.
// An empty ilk targets the component's global parameters.
func (s *System) SetParam(caller common.Address, component, ilk, key string, value *uint256.Int) error {
	return s.run("file", func() error {
		switch component {
		case "vat":
			if ilk == "" {
				return s.vat.File(caller, key, value)
			}
			return s.vat.FileIlk(caller, ilk, key, value)
		case "spot":
			if ilk == "" {
				return s.spot.File(caller, key, value)
			}
			return s.spot.FileIlk(caller, ilk, key, value)
		case "jug":
			if ilk == "" {
				return s.jug.File(caller, key, value)
			}
			return s.jug.FileIlk(caller, ilk, key, value)
		case "dog":
			if ilk == "" {
				return s.dog.File(caller, key, value)
			}
			return s.dog.FileIlk(caller, ilk, key, value)
		case "vow":
			return s.vow.File(caller, key, value)
		case "clip":
			auction, err := s.clip(ilk)
			if err != nil {
				return err
			}
			if len(key) > 5 && key[:5] == "calc." {
				return auction.FileCalc(caller, key[5:], value)
			}
			return auction.File(caller, key, value)
		default:
			return fmt.Errorf("cdp: component %q: %w", component, cdperrors.ErrUnrecognizedParam)
		}
	})
}

// SetCalculator replaces the price curve of the ilk's auctions.
func (s *System) SetCalculator(caller common.Address, ilk, kind string, params map[string]*uint256.Int) error {
	return s.run("file", func() error {
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		calc, err := abacus.New(kind)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(params))
		for key := range params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := calc.File(key, params[key]); err != nil {
				return err
			}
		}
		return auction.SetCalculator(caller, calc)
	})
}

// SetSink sets the recipient of flapped surplus.
func (s *System) SetSink(caller, sink common.Address) error {
	return s.run("file", func() error { return s.vow.SetSink(caller, sink) })
}

// Rely grants usr the ward of a component. "system" covers joins and price
// publication; "clip" requires ilk.
func (s *System) Rely(caller common.Address, component, ilk string, usr common.Address) error {
	return s.run("rely", func() error { return s.setWard(caller, component, ilk, usr, true) })
}

// Deny revokes the ward of usr on a component.
func (s *System) Deny(caller common.Address, component, ilk string, usr common.Address) error {
	return s.run("deny", func() error { return s.setWard(caller, component, ilk, usr, false) })
}

func (s *System) setWard(caller common.Address, component, ilk string, usr common.Address, grant bool) error {
	type warded interface {
		Rely(caller, usr common.Address) error
		Deny(caller, usr common.Address) error
	}
	var target warded
	switch component {
	case "system":
		if grant {
			return s.wards.Rely(s.journal, caller, usr)
		}
		return s.wards.Deny(s.journal, caller, usr)
	case "vat":
		target = s.vat
	case "spot":
		target = s.spot
	case "jug":
		target = s.jug
	case "dog":
		target = s.dog
	case "vow":
		target = s.vow
	case "clip":
		auction, err := s.clip(ilk)
		if err != nil {
			return err
		}
		target = auction
	default:
		return fmt.Errorf("cdp: component %q: %w", component, cdperrors.ErrUnrecognizedParam)
	}
	if grant {
		return target.Rely(caller, usr)
	}
	return target.Deny(caller, usr)
}

// Cage freezes the ledger, price updates, liquidations and surplus release.
// Risk-reducing position changes and running auctions continue.
func (s *System) Cage(caller common.Address) error {
	return s.run("cage", func() error {
		return errors.Join(
			s.vat.Cage(caller),
			s.spot.Cage(caller),
			s.dog.Cage(caller),
			s.vow.Cage(caller),
		)
	})
}
