// Package clip runs the Dutch auctions that sell collateral seized by
// liquidation. Each Clipper serves one collateral type.
package clip

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/abacus"
	"cdpvault/native/cdp/fixed"
	"cdpvault/native/cdp/vat"
	nativecommon "cdpvault/native/common"
)

const moduleName = "clip"

// Ledger is the slice of the vat the clipper needs.
type Ledger interface {
	Ilk(ilk string) (vat.Ilk, bool)
	Suck(caller, sinDst, stableDst common.Address, rad *uint256.Int) error
	Flux(caller common.Address, ilk string, src, dst common.Address, wad *uint256.Int) error
	Move(caller, src, dst common.Address, rad *uint256.Int) error
}

// PriceSource supplies the undiscounted collateral price [ray].
type PriceSource interface {
	FeedPrice(ilk string) (*uint256.Int, error)
}

// Liquidator is the liquidation module the clipper reports cleared debt to.
type Liquidator interface {
	Digs(caller common.Address, ilk string, rad *uint256.Int) error
	Chop(ilk string) *uint256.Int
}

// Callee receives the purchased collateral before payment is collected,
// allowing flash purchases. Calling back into the same Clipper returns
// ErrReentrant. When the take runs through cdp.System the system lock is
// held for the call, so a callee must not use that System; it would block.
type Callee interface {
	ClipperCall(sender common.Address, owe, slice *uint256.Int, data []byte) error
}

// Stop levels. Each level also blocks everything the lower levels block.
const (
	StopNone   uint8 = 0
	StopKick   uint8 = 1 // no new auctions
	StopRedo   uint8 = 2 // no resets either
	StopTake   uint8 = 3 // no purchases either
	maxStopped       = StopTake
)

// Sale is a running auction.
type Sale struct {
	Pos int            // index in the active list
	Tab *uint256.Int   // debt still to raise, penalty included [rad]
	Lot *uint256.Int   // collateral for sale [wad]
	Usr common.Address // liquidated owner, receives leftovers
	Tic uint64         // start of the current price curve
	Top *uint256.Int   // starting price [ray]
}

func (s Sale) clone() Sale {
	s.Tab = fixed.Value(s.Tab)
	s.Lot = fixed.Value(s.Lot)
	s.Top = fixed.Value(s.Top)
	return s
}

// Clipper auctions the collateral of one ilk.
type Clipper struct {
	journal *nativecommon.Journal
	wards   *nativecommon.Wards
	self    common.Address
	clock   nativecommon.Clock
	ilk     string

	vat     Ledger
	spotter PriceSource
	dog     Liquidator
	vow     common.Address
	calc    abacus.Calculator

	buf   *uint256.Int // starting price multiplier [ray]
	tail  uint64       // seconds before a reset is allowed
	cusp  *uint256.Int // price drop before a reset is allowed [ray]
	chip  *uint256.Int // keeper reward as share of tab [wad]
	tip   *uint256.Int // flat keeper reward [rad]
	chost *uint256.Int // cached dust * chop [rad]

	stopped uint8
	kicks   uint64
	active  []uint64
	sales   map[uint64]Sale
	locked  bool
}

// Config wires a clipper to its collaborators.
type Config struct {
	Ilk      string
	Self     common.Address
	Deployer common.Address
	Vat      Ledger
	Spotter  PriceSource
	Dog      Liquidator
	Vow      common.Address
	Calc     abacus.Calculator
}

func New(journal *nativecommon.Journal, clock nativecommon.Clock, cfg Config) *Clipper {
	if journal == nil {
		journal = nativecommon.NewJournal(nil)
	}
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	calc := cfg.Calc
	if calc == nil {
		calc = &abacus.LinearDecrease{}
	}
	return &Clipper{
		journal: journal,
		wards:   nativecommon.NewWards(moduleName+"/"+cfg.Ilk, cfg.Deployer),
		self:    cfg.Self,
		clock:   clock,
		ilk:     cfg.Ilk,
		vat:     cfg.Vat,
		spotter: cfg.Spotter,
		dog:     cfg.Dog,
		vow:     cfg.Vow,
		calc:    calc,
		buf:     fixed.Ray(),
		cusp:    new(uint256.Int),
		chip:    new(uint256.Int),
		tip:     new(uint256.Int),
		chost:   new(uint256.Int),
		sales:   make(map[uint64]Sale),
	}
}

func (c *Clipper) atomic(op string, fn func() error) error {
	if err := c.journal.Atomic(fn); err != nil {
		return fmt.Errorf("clip %s: %s: %w", c.ilk, op, err)
	}
	return nil
}

// enter takes the reentrancy lock; the returned func releases it.
func (c *Clipper) enter() (func(), error) {
	if c.locked {
		return nil, cdperrors.ErrReentrant
	}
	c.locked = true
	return func() { c.locked = false }, nil
}

func (c *Clipper) checkStopped(level uint8) error {
	if c.stopped >= level {
		return fmt.Errorf("level %d: %w", c.stopped, cdperrors.ErrStopped)
	}
	return nil
}

// SetDog wires the liquidation module after construction.
func (c *Clipper) SetDog(dog Liquidator) { c.dog = dog }

func (c *Clipper) Rely(caller, usr common.Address) error {
	return c.atomic("rely", func() error { return c.wards.Rely(c.journal, caller, usr) })
}

func (c *Clipper) Deny(caller, usr common.Address) error {
	return c.atomic("deny", func() error { return c.wards.Deny(c.journal, caller, usr) })
}

// File sets a numeric parameter: buf, tail, cusp, chip, tip or stopped.
func (c *Clipper) File(caller common.Address, what string, data *uint256.Int) error {
	return c.atomic("file", func() error {
		release, err := c.enter()
		if err != nil {
			return err
		}
		defer release()
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		data := fixed.Value(data)
		switch what {
		case "buf":
			nativecommon.Assign(c.journal, &c.buf, data)
		case "cusp":
			nativecommon.Assign(c.journal, &c.cusp, data)
		case "chip":
			nativecommon.Assign(c.journal, &c.chip, data)
		case "tip":
			nativecommon.Assign(c.journal, &c.tip, data)
		case "tail":
			if !data.IsUint64() {
				return cdperrors.ErrInvalidParam
			}
			nativecommon.Assign(c.journal, &c.tail, data.Uint64())
		case "stopped":
			if !data.IsUint64() || data.Uint64() > uint64(maxStopped) {
				return cdperrors.ErrInvalidParam
			}
			nativecommon.Assign(c.journal, &c.stopped, uint8(data.Uint64()))
		default:
			return fmt.Errorf("%q: %w", what, cdperrors.ErrUnrecognizedParam)
		}
		c.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: c.ilk, Key: what, Value: data.Dec()})
		return nil
	})
}

// FileVow sets the recipient of auction proceeds.
func (c *Clipper) FileVow(caller, vow common.Address) error {
	return c.atomic("file", func() error {
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		nativecommon.Assign(c.journal, &c.vow, vow)
		c.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: c.ilk, Key: "vow", Value: vow.Hex()})
		return nil
	})
}

// SetCalculator replaces the price curve. Running auctions continue on the
// new curve from their current tic and top.
func (c *Clipper) SetCalculator(caller common.Address, calc abacus.Calculator) error {
	return c.atomic("file", func() error {
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		if calc == nil {
			return cdperrors.ErrInvalidParam
		}
		nativecommon.Assign(c.journal, &c.calc, calc)
		c.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: c.ilk, Key: "calc", Value: calc.Kind()})
		return nil
	})
}

// FileCalc sets a parameter of the current price curve.
func (c *Clipper) FileCalc(caller common.Address, what string, data *uint256.Int) error {
	return c.atomic("file", func() error {
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		next, err := cloneCalculator(c.calc)
		if err != nil {
			return err
		}
		if err := next.File(what, data); err != nil {
			return err
		}
		nativecommon.Assign(c.journal, &c.calc, next)
		c.journal.Emit(events.ParamUpdated{Module: moduleName, Ilk: c.ilk, Key: "calc." + what, Value: fixed.Value(data).Dec()})
		return nil
	})
}

func cloneCalculator(calc abacus.Calculator) (abacus.Calculator, error) {
	out, err := abacus.New(calc.Kind())
	if err != nil {
		return nil, err
	}
	for key, value := range abacus.Params(calc) {
		if key == "cut" && value.IsZero() {
			continue
		}
		if err := out.File(key, value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Upchost refreshes the cached minimum auction size from the ledger dust and
// the liquidation penalty.
func (c *Clipper) Upchost(caller common.Address) error {
	return c.atomic("upchost", func() error {
		rec, ok := c.vat.Ilk(c.ilk)
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		chop := fixed.Wad()
		if c.dog != nil {
			chop = c.dog.Chop(c.ilk)
		}
		chost, err := fixed.Wmul(rec.Dust, chop)
		if err != nil {
			return err
		}
		nativecommon.Assign(c.journal, &c.chost, chost)
		return nil
	})
}

func (c *Clipper) startPrice() (*uint256.Int, *uint256.Int, error) {
	if c.spotter == nil {
		return nil, nil, cdperrors.ErrUnavailable
	}
	price, err := c.spotter.FeedPrice(c.ilk)
	if err != nil {
		return nil, nil, err
	}
	top, err := fixed.Rmul(price, c.buf)
	if err != nil {
		return nil, nil, err
	}
	if top.IsZero() {
		return nil, nil, cdperrors.ErrUnavailable
	}
	return price, top, nil
}

func (c *Clipper) incentive(tab *uint256.Int) (*uint256.Int, error) {
	share, err := fixed.Wmul(tab, c.chip)
	if err != nil {
		return nil, err
	}
	return fixed.Add(c.tip, share)
}

func (c *Clipper) pay(kpr common.Address, coin *uint256.Int) error {
	if coin == nil || coin.IsZero() {
		return nil
	}
	return c.vat.Suck(c.self, c.vow, kpr, coin)
}

// Kick opens an auction for lot collateral to raise tab, on behalf of the
// liquidated usr, and pays the keeper incentive to kpr.
func (c *Clipper) Kick(caller common.Address, tab, lot *uint256.Int, usr, kpr common.Address) (uint64, error) {
	var id uint64
	err := c.atomic("kick", func() error {
		release, err := c.enter()
		if err != nil {
			return err
		}
		defer release()
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		if err := c.checkStopped(StopKick); err != nil {
			return err
		}
		if tab == nil || tab.IsZero() || lot == nil || lot.IsZero() {
			return fmt.Errorf("empty tab or lot: %w", cdperrors.ErrInvalidParam)
		}
		if usr == (common.Address{}) {
			return fmt.Errorf("zero usr: %w", cdperrors.ErrInvalidParam)
		}
		_, top, err := c.startPrice()
		if err != nil {
			return err
		}
		id = c.kicks + 1
		nativecommon.Assign(c.journal, &c.kicks, id)
		active := append(append([]uint64(nil), c.active...), id)
		nativecommon.Assign(c.journal, &c.active, active)
		sale := Sale{Pos: len(active) - 1, Tab: fixed.Value(tab), Lot: fixed.Value(lot), Usr: usr, Tic: c.clock.Now(), Top: top}
		nativecommon.AssignKey(c.journal, c.sales, id, sale)
		coin := new(uint256.Int)
		if !c.tip.IsZero() || !c.chip.IsZero() {
			if coin, err = c.incentive(tab); err != nil {
				return err
			}
			if err := c.pay(kpr, coin); err != nil {
				return err
			}
		}
		c.journal.Emit(events.AuctionKicked{
			Ilk: c.ilk, ID: id, Top: fixed.Value(top), Tab: fixed.Value(tab), Lot: fixed.Value(lot),
			Usr: usr, Kpr: kpr, Coin: coin,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Redo restarts the price curve of an auction that has run past tail or
// dropped below cusp, and pays the keeper incentive when the sale is large
// enough to be worth it.
func (c *Clipper) Redo(caller common.Address, id uint64, kpr common.Address) error {
	return c.atomic("redo", func() error {
		release, err := c.enter()
		if err != nil {
			return err
		}
		defer release()
		if err := c.checkStopped(StopRedo); err != nil {
			return err
		}
		sale, ok := c.sales[id]
		if !ok {
			return cdperrors.ErrNotRunning
		}
		done, _, err := c.status(sale)
		if err != nil {
			return err
		}
		if !done {
			return cdperrors.ErrNotNeeded
		}
		price, top, err := c.startPrice()
		if err != nil {
			return err
		}
		sale = sale.clone()
		sale.Tic = c.clock.Now()
		sale.Top = top
		nativecommon.AssignKey(c.journal, c.sales, id, sale)

		coin := new(uint256.Int)
		if !c.tip.IsZero() || !c.chip.IsZero() {
			worth, err := fixed.Mul(sale.Lot, price)
			if err != nil {
				return err
			}
			if !sale.Tab.Lt(c.chost) && !worth.Lt(c.chost) {
				if coin, err = c.incentive(sale.Tab); err != nil {
					return err
				}
				if err := c.pay(kpr, coin); err != nil {
					return err
				}
			}
		}
		c.journal.Emit(events.AuctionReset{
			Ilk: c.ilk, ID: id, Top: fixed.Value(top), Tab: fixed.Value(sale.Tab), Lot: fixed.Value(sale.Lot),
			Usr: sale.Usr, Kpr: kpr, Coin: coin,
		})
		return nil
	})
}

// TakeRequest describes a purchase. Amount caps the collateral bought
// [wad], MaxPrice caps the acceptable price [ray]. Collateral goes to
// Recipient (the caller when zero); a non-nil Callee is invoked with Data
// after the collateral is delivered and before payment is collected.
type TakeRequest struct {
	ID        uint64
	Amount    *uint256.Int
	MaxPrice  *uint256.Int
	Recipient common.Address
	Callee    Callee
	Data      []byte
}

// TakeResult reports what a Take settled.
type TakeResult struct {
	Price   *uint256.Int // [ray]
	Slice   *uint256.Int // collateral bought [wad]
	Owe     *uint256.Int // stable paid [rad]
	Tab     *uint256.Int // debt left to raise [rad]
	Lot     *uint256.Int // collateral left [wad]
	Cleared bool
}

// Take buys collateral from a running auction at the current price. The
// caller pays from its internal stable balance, so it must have hoped the
// clipper on the ledger.
func (c *Clipper) Take(caller common.Address, req TakeRequest) (TakeResult, error) {
	var result TakeResult
	err := c.atomic("take", func() error {
		release, err := c.enter()
		if err != nil {
			return err
		}
		defer release()
		if err := c.checkStopped(StopTake); err != nil {
			return err
		}
		sale, ok := c.sales[req.ID]
		if !ok {
			return cdperrors.ErrNotRunning
		}
		sale = sale.clone()
		done, price, err := c.status(sale)
		if err != nil {
			return err
		}
		if done || price.IsZero() {
			return fmt.Errorf("needs reset: %w", cdperrors.ErrStale)
		}
		if req.MaxPrice == nil || req.MaxPrice.Lt(price) {
			return cdperrors.ErrTooExpensive
		}
		if req.Amount == nil || req.Amount.IsZero() {
			return fmt.Errorf("zero amount: %w", cdperrors.ErrInvalidParam)
		}
		who := req.Recipient
		if who == (common.Address{}) {
			who = caller
		}

		slice := fixed.Min(sale.Lot, fixed.Value(req.Amount))
		owe, err := fixed.Mul(slice, price)
		if err != nil {
			return err
		}
		if owe.Gt(sale.Tab) {
			owe = fixed.Value(sale.Tab)
			slice = new(uint256.Int).Div(owe, price)
		} else if owe.Lt(sale.Tab) && slice.Lt(sale.Lot) {
			if new(uint256.Int).Sub(sale.Tab, owe).Lt(c.chost) {
				if !sale.Tab.Gt(c.chost) {
					return cdperrors.ErrNoPartialPurchase
				}
				owe = new(uint256.Int).Sub(sale.Tab, c.chost)
				slice = new(uint256.Int).Div(owe, price)
			}
		}
		tab := new(uint256.Int).Sub(sale.Tab, owe)
		lot := new(uint256.Int).Sub(sale.Lot, slice)

		if err := c.vat.Flux(c.self, c.ilk, c.self, who, slice); err != nil {
			return err
		}
		if req.Callee != nil {
			if err := req.Callee.ClipperCall(caller, fixed.Value(owe), fixed.Value(slice), req.Data); err != nil {
				return fmt.Errorf("callee: %w", err)
			}
		}
		if err := c.vat.Move(c.self, caller, c.vow, owe); err != nil {
			return err
		}
		cleared := fixed.Value(owe)
		if lot.IsZero() {
			if cleared, err = fixed.Add(tab, owe); err != nil {
				return err
			}
		}
		if c.dog != nil {
			if err := c.dog.Digs(c.self, c.ilk, cleared); err != nil {
				return err
			}
		}
		switch {
		case lot.IsZero():
			c.remove(req.ID)
		case tab.IsZero():
			if err := c.vat.Flux(c.self, c.ilk, c.self, sale.Usr, lot); err != nil {
				return err
			}
			c.remove(req.ID)
		default:
			sale.Tab, sale.Lot = tab, lot
			nativecommon.AssignKey(c.journal, c.sales, req.ID, sale)
		}
		result = TakeResult{
			Price: price, Slice: slice, Owe: owe, Tab: tab, Lot: lot,
			Cleared: lot.IsZero() || tab.IsZero(),
		}
		c.journal.Emit(events.AuctionTaken{
			Ilk: c.ilk, ID: req.ID, Max: fixed.Value(req.MaxPrice), Price: fixed.Value(price),
			Owe: fixed.Value(owe), Tab: fixed.Value(tab), Lot: fixed.Value(lot), Usr: sale.Usr, Buyer: who,
		})
		return nil
	})
	return result, err
}

// Yank cancels an auction and hands its collateral to the caller. It is the
// administrative exit used when auctions must be stopped for good.
func (c *Clipper) Yank(caller common.Address, id uint64) error {
	return c.atomic("yank", func() error {
		release, err := c.enter()
		if err != nil {
			return err
		}
		defer release()
		if err := c.wards.Require(caller); err != nil {
			return err
		}
		sale, ok := c.sales[id]
		if !ok {
			return cdperrors.ErrNotRunning
		}
		if c.dog != nil {
			if err := c.dog.Digs(c.self, c.ilk, sale.Tab); err != nil {
				return err
			}
		}
		if err := c.vat.Flux(c.self, c.ilk, c.self, caller, sale.Lot); err != nil {
			return err
		}
		c.remove(id)
		c.journal.Emit(events.AuctionYanked{Ilk: c.ilk, ID: id, Lot: fixed.Value(sale.Lot)})
		return nil
	})
}

// remove deletes a sale, moving the last active id into its slot.
func (c *Clipper) remove(id uint64) {
	sale := c.sales[id]
	active := append([]uint64(nil), c.active...)
	last := len(active) - 1
	if sale.Pos != last {
		moved := active[last]
		active[sale.Pos] = moved
		movedSale := c.sales[moved].clone()
		movedSale.Pos = sale.Pos
		nativecommon.AssignKey(c.journal, c.sales, moved, movedSale)
	}
	nativecommon.Assign(c.journal, &c.active, active[:last])
	nativecommon.DeleteKey(c.journal, c.sales, id)
}

func (c *Clipper) status(sale Sale) (bool, *uint256.Int, error) {
	now := c.clock.Now()
	var elapsed uint64
	if now > sale.Tic {
		elapsed = now - sale.Tic
	}
	price, err := c.calc.Price(sale.Top, elapsed)
	if err != nil {
		return false, nil, err
	}
	if elapsed > c.tail {
		return true, price, nil
	}
	drop, err := fixed.Rdiv(price, sale.Top)
	if err != nil {
		return false, nil, err
	}
	return drop.Lt(c.cusp), price, nil
}

// Status describes an auction as seen by bidders.
type Status struct {
	NeedsRedo bool
	Price     *uint256.Int
	Lot       *uint256.Int
	Tab       *uint256.Int
}

// Status reports whether auction id needs a reset and its current price.
// A finished or unknown id reports ErrNotRunning.
func (c *Clipper) Status(id uint64) (Status, error) {
	sale, ok := c.sales[id]
	if !ok {
		return Status{}, fmt.Errorf("clip %s: status: %w", c.ilk, cdperrors.ErrNotRunning)
	}
	done, price, err := c.status(sale)
	if err != nil {
		return Status{}, err
	}
	return Status{NeedsRedo: done, Price: price, Lot: fixed.Value(sale.Lot), Tab: fixed.Value(sale.Tab)}, nil
}

// Sale returns a copy of auction id.
func (c *Clipper) Sale(id uint64) (Sale, bool) {
	sale, ok := c.sales[id]
	if !ok {
		return Sale{}, false
	}
	return sale.clone(), true
}

// List returns the ids of running auctions.
func (c *Clipper) List() []uint64 { return append([]uint64(nil), c.active...) }

// Count returns the number of running auctions.
func (c *Clipper) Count() int { return len(c.active) }

// Kicks returns the number of auctions ever started.
func (c *Clipper) Kicks() uint64 { return c.kicks }

func (c *Clipper) Ilk() string             { return c.ilk }
func (c *Clipper) Address() common.Address { return c.self }
func (c *Clipper) Stopped() uint8          { return c.stopped }
func (c *Clipper) Chost() *uint256.Int     { return fixed.Value(c.chost) }
func (c *Clipper) Calculator() abacus.Calculator {
	return c.calc
}

// Params returns the numeric auction parameters keyed by File name.
func (c *Clipper) Params() map[string]*uint256.Int {
	return map[string]*uint256.Int{
		"buf":     fixed.Value(c.buf),
		"tail":    uint256.NewInt(c.tail),
		"cusp":    fixed.Value(c.cusp),
		"chip":    fixed.Value(c.chip),
		"tip":     fixed.Value(c.tip),
		"stopped": uint256.NewInt(uint64(c.stopped)),
	}
}

type SaleEntry struct {
	ID  uint64
	Tab *uint256.Int
	Lot *uint256.Int
	Usr common.Address
	Tic uint64
	Top *uint256.Int
}

type ParamEntry struct {
	Key   string
	Value *uint256.Int
}

// Snapshot holds the persisted clipper state. Sales are listed in active
// order so positions survive a restore.
type Snapshot struct {
	Wards      []common.Address
	Vow        common.Address
	Buf        *uint256.Int
	Tail       uint64
	Cusp       *uint256.Int
	Chip       *uint256.Int
	Tip        *uint256.Int
	Chost      *uint256.Int
	Stopped    uint8
	Kicks      uint64
	Sales      []SaleEntry
	CalcKind   string
	CalcParams []ParamEntry
}

func (c *Clipper) Export() Snapshot {
	snap := Snapshot{
		Wards: c.wards.List(), Vow: c.vow,
		Buf: fixed.Value(c.buf), Tail: c.tail, Cusp: fixed.Value(c.cusp),
		Chip: fixed.Value(c.chip), Tip: fixed.Value(c.tip), Chost: fixed.Value(c.chost),
		Stopped: c.stopped, Kicks: c.kicks, CalcKind: c.calc.Kind(),
	}
	for _, id := range c.active {
		sale := c.sales[id].clone()
		snap.Sales = append(snap.Sales, SaleEntry{ID: id, Tab: sale.Tab, Lot: sale.Lot, Usr: sale.Usr, Tic: sale.Tic, Top: sale.Top})
	}
	params := abacus.Params(c.calc)
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		snap.CalcParams = append(snap.CalcParams, ParamEntry{Key: key, Value: params[key]})
	}
	return snap
}

func (c *Clipper) Restore(snap Snapshot) error {
	calc, err := abacus.New(snap.CalcKind)
	if err != nil {
		return err
	}
	for _, param := range snap.CalcParams {
		if param.Key == "cut" && fixed.Value(param.Value).IsZero() {
			continue
		}
		if err := calc.File(param.Key, param.Value); err != nil {
			return err
		}
	}
	c.wards.Restore(snap.Wards)
	c.vow = snap.Vow
	c.buf = fixed.Value(snap.Buf)
	c.tail = snap.Tail
	c.cusp = fixed.Value(snap.Cusp)
	c.chip = fixed.Value(snap.Chip)
	c.tip = fixed.Value(snap.Tip)
	c.chost = fixed.Value(snap.Chost)
	c.stopped = snap.Stopped
	c.kicks = snap.Kicks
	c.calc = calc
	c.active = make([]uint64, 0, len(snap.Sales))
	c.sales = make(map[uint64]Sale, len(snap.Sales))
	for i, entry := range snap.Sales {
		c.active = append(c.active, entry.ID)
		c.sales[entry.ID] = Sale{
			Pos: i, Tab: fixed.Value(entry.Tab), Lot: fixed.Value(entry.Lot),
			Usr: entry.Usr, Tic: entry.Tic, Top: fixed.Value(entry.Top),
		}
	}
	return nil
}
