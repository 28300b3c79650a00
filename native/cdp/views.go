package cdp

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/abacus"
	"cdpvault/native/cdp/fixed"
	"cdpvault/native/cdp/spot"
)

// IlkView aggregates what every component knows about one collateral type.
type IlkView struct {
	Name string
	Art  *uint256.Int // [wad]
	Rate *uint256.Int // [ray]
	Spot *uint256.Int // [ray]
	Line *uint256.Int // [rad]
	Dust *uint256.Int // [rad]
	Mat  *uint256.Int // [ray]
	Duty *uint256.Int // [ray]
	Rho  uint64
	Chop *uint256.Int // [wad]
	Hole *uint256.Int // [rad]
	Dirt *uint256.Int // [rad]

	Price       *uint256.Int // last feed value [wad]
	PriceStatus spot.PriceStatus
	PriceAge    uint64

	Calc         string
	CalcParams   map[string]*uint256.Int
	ClipParams   map[string]*uint256.Int
	Chost        *uint256.Int // [rad]
	AuctionCount int
}

// UrnView is a position with its derived debt and safety.
type UrnView struct {
	Ilk   string
	Owner common.Address
	Ink   *uint256.Int // [wad]
	Art   *uint256.Int // [wad]
	Debt  *uint256.Int // art*rate [rad]
	Safe  bool
}

// AuctionView is a running sale with its live price.
type AuctionView struct {
	Ilk       string
	ID        uint64
	Tab       *uint256.Int // [rad]
	Lot       *uint256.Int // [wad]
	Usr       common.Address
	Tic       uint64
	Top       *uint256.Int // [ray]
	Price     *uint256.Int // [ray]
	NeedsRedo bool
}

// Totals are the system-wide ledger and settlement figures.
type Totals struct {
	Live        bool
	Debt        *uint256.Int // [rad]
	Vice        *uint256.Int // [rad]
	Line        *uint256.Int // [rad]
	Surplus     *uint256.Int // vow stable [rad]
	Deficit     *uint256.Int // vow sin [rad]
	Queued      *uint256.Int // [rad]
	Hole        *uint256.Int // [rad]
	Dirt        *uint256.Int // [rad]
	Base        *uint256.Int // [ray]
	Par         *uint256.Int // [ray]
	VowWait     uint64
	VowSink     common.Address
	VowAddress  common.Address
	JoinAddress common.Address
}

// Ilks lists the collateral types.
func (s *System) Ilks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vat.Ilks()
}

// Ilk returns the aggregated view of ilk.
func (s *System) Ilk(name string) (IlkView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.vat.Ilk(name)
	if !ok {
		return IlkView{}, fmt.Errorf("cdp: ilk %s: %w", name, cdperrors.ErrIlkNotInitialized)
	}
	view := IlkView{
		Name: name, Art: rec.Art, Rate: rec.Rate, Spot: rec.Spot, Line: rec.Line, Dust: rec.Dust,
		Mat:  s.spot.Mat(name),
		Chop: s.dog.Chop(name),
	}
	view.Duty, view.Rho, _ = s.jug.Duty(name)
	view.Hole, view.Dirt = s.dog.IlkRoom(name)
	if feed, ok := s.feeds[name]; ok {
		view.Price, _ = feed.Observation()
		view.PriceStatus = feed.Status()
		view.PriceAge = feed.Age()
	}
	if auction, ok := s.clips[name]; ok {
		calc := auction.Calculator()
		view.Calc = calc.Kind()
		view.CalcParams = abacus.Params(calc)
		view.ClipParams = auction.Params()
		view.Chost = auction.Chost()
		view.AuctionCount = auction.Count()
	}
	return view, nil
}

// Urn returns the position of owner in ilk.
func (s *System) Urn(ilk string, owner common.Address) (UrnView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urnLocked(ilk, owner)
}

func (s *System) urnLocked(ilk string, owner common.Address) (UrnView, error) {
	rec, ok := s.vat.Ilk(ilk)
	if !ok {
		return UrnView{}, fmt.Errorf("cdp: ilk %s: %w", ilk, cdperrors.ErrIlkNotInitialized)
	}
	urn := s.vat.Urn(ilk, owner)
	debt, err := fixed.Mul(urn.Art, rec.Rate)
	if err != nil {
		return UrnView{}, err
	}
	safe, err := s.vat.Safe(ilk, owner)
	if err != nil {
		return UrnView{}, err
	}
	return UrnView{Ilk: ilk, Owner: owner, Ink: urn.Ink, Art: urn.Art, Debt: debt, Safe: safe}, nil
}

// Urns lists every open position of ilk.
func (s *System) Urns(ilk string) ([]UrnView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := s.vat.Urns(ilk)
	out := make([]UrnView, 0, len(owners))
	for _, owner := range owners {
		view, err := s.urnLocked(ilk, owner)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// UnsafeUrns lists the owners of ilk positions that can be liquidated at
// the current spot price.
func (s *System) UnsafeUrns(ilk string) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []common.Address
	for _, owner := range s.vat.Urns(ilk) {
		safe, err := s.vat.Safe(ilk, owner)
		if err != nil {
			return nil, err
		}
		if !safe {
			out = append(out, owner)
		}
	}
	return out, nil
}

// Balances returns the stable [rad] and sin [rad] balances of usr.
func (s *System) Balances(usr common.Address) (stable, sin *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vat.Stable(usr), s.vat.Sin(usr)
}

// Gem returns the free collateral of usr in ilk [wad].
func (s *System) Gem(ilk string, usr common.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vat.Gem(ilk, usr)
}

// CanModify reports whether usr may act for owner on the ledger.
func (s *System) CanModify(owner, usr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vat.CanModify(owner, usr)
}

// Totals returns the system-wide figures.
func (s *System) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	vowAddr := s.vow.Address()
	t := Totals{
		Live: s.vat.Live(), Debt: s.vat.Debt(), Vice: s.vat.Vice(), Line: s.vat.Line(),
		Surplus: s.vat.Stable(vowAddr), Deficit: s.vat.Sin(vowAddr), Queued: s.vow.QueuedTotal(),
		Base: s.jug.Base(), Par: s.spot.Par(),
		VowWait: s.vow.Wait(), VowSink: s.vow.Sink(), VowAddress: vowAddr, JoinAddress: s.self,
	}
	t.Hole, t.Dirt = s.dog.Room()
	return t
}

// QueuedDebt returns the eras that still hold queued debt.
func (s *System) QueuedDebt() map[uint64]*uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint64]*uint256.Int)
	for _, era := range s.vow.Eras() {
		out[era] = s.vow.Queued(era)
	}
	return out
}

// Auctions lists the running sales of ilk.
func (s *System) Auctions(ilk string) ([]AuctionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auction, err := s.clip(ilk)
	if err != nil {
		return nil, err
	}
	ids := auction.List()
	out := make([]AuctionView, 0, len(ids))
	for _, id := range ids {
		view, err := s.auctionLocked(ilk, id)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// Auction returns one running sale of ilk.
func (s *System) Auction(ilk string, id uint64) (AuctionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auctionLocked(ilk, id)
}

func (s *System) auctionLocked(ilk string, id uint64) (AuctionView, error) {
	auction, err := s.clip(ilk)
	if err != nil {
		return AuctionView{}, err
	}
	sale, ok := auction.Sale(id)
	if !ok {
		return AuctionView{}, fmt.Errorf("cdp: auction %s/%d: %w", ilk, id, cdperrors.ErrNotRunning)
	}
	status, err := auction.Status(id)
	if err != nil {
		return AuctionView{}, err
	}
	return AuctionView{
		Ilk: ilk, ID: id, Tab: sale.Tab, Lot: sale.Lot, Usr: sale.Usr, Tic: sale.Tic, Top: sale.Top,
		Price: status.Price, NeedsRedo: status.NeedsRedo,
	}, nil
}

// ClipAddress returns the ledger address of the ilk's auction house. Buyers
// must hope it before taking.
func (s *System) ClipAddress(ilk string) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auction, err := s.clip(ilk)
	if err != nil {
		return common.Address{}, err
	}
	return auction.Address(), nil
}
