package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cdpvault/core/types"
)

const (
	TypeWardUpdated       = "cdp.ward_updated"
	TypeParamUpdated      = "cdp.param_updated"
	TypeIlkInitialized    = "cdp.ilk_initialized"
	TypeModuleCaged       = "cdp.caged"
	TypeCollateralSlipped = "vat.slip"
	TypeCollateralMoved   = "vat.flux"
	TypeStableMoved       = "vat.move"
	TypePositionModified  = "vat.frob"
	TypePositionForked    = "vat.fork"
	TypePositionGrabbed   = "vat.grab"
	TypeDebtHealed        = "vat.heal"
	TypeUnbackedMinted    = "vat.suck"
	TypeRateAccrued       = "vat.fold"
	TypePricePoked        = "spot.poke"
	TypeFeeDripped        = "jug.drip"
	TypeBarked            = "dog.bark"
	TypeRoomRestored      = "dog.digs"
	TypeAuctionKicked     = "clip.kick"
	TypeAuctionTaken      = "clip.take"
	TypeAuctionReset      = "clip.redo"
	TypeAuctionYanked     = "clip.yank"
	TypeDebtQueued        = "vow.fess"
	TypeDebtReleased      = "vow.flog"
	TypeSurplusFlapped    = "vow.flap"
)

func amount(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}

func delta(d *big.Int) string {
	if d == nil {
		return "0"
	}
	return d.String()
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

type WardUpdated struct {
	Module     string
	Usr        common.Address
	Authorized bool
}

func (WardUpdated) EventType() string { return TypeWardUpdated }

func (e WardUpdated) Event() *types.Event {
	return &types.Event{Type: TypeWardUpdated, Attributes: map[string]string{
		"module":     e.Module,
		"usr":        e.Usr.Hex(),
		"authorized": strconv.FormatBool(e.Authorized),
	}}
}

// ParamUpdated records an administrative parameter change. Ilk is empty for
// global parameters.
type ParamUpdated struct {
	Module string
	Ilk    string
	Key    string
	Value  string
}

func (ParamUpdated) EventType() string { return TypeParamUpdated }

func (e ParamUpdated) Event() *types.Event {
	return &types.Event{Type: TypeParamUpdated, Attributes: map[string]string{
		"module": e.Module,
		"ilk":    e.Ilk,
		"key":    e.Key,
		"value":  e.Value,
	}}
}

type IlkInitialized struct {
	Module string
	Ilk    string
}

func (IlkInitialized) EventType() string { return TypeIlkInitialized }

func (e IlkInitialized) Event() *types.Event {
	return &types.Event{Type: TypeIlkInitialized, Attributes: map[string]string{
		"module": e.Module,
		"ilk":    e.Ilk,
	}}
}

type ModuleCaged struct {
	Module string
}

func (ModuleCaged) EventType() string { return TypeModuleCaged }

func (e ModuleCaged) Event() *types.Event {
	return &types.Event{Type: TypeModuleCaged, Attributes: map[string]string{"module": e.Module}}
}

type CollateralSlipped struct {
	Ilk string
	Usr common.Address
	Wad *big.Int
}

func (CollateralSlipped) EventType() string { return TypeCollateralSlipped }

func (e CollateralSlipped) Event() *types.Event {
	return &types.Event{Type: TypeCollateralSlipped, Attributes: map[string]string{
		"ilk": e.Ilk,
		"usr": e.Usr.Hex(),
		"wad": delta(e.Wad),
	}}
}

type CollateralMoved struct {
	Ilk string
	Src common.Address
	Dst common.Address
	Wad *uint256.Int
}

func (CollateralMoved) EventType() string { return TypeCollateralMoved }

func (e CollateralMoved) Event() *types.Event {
	return &types.Event{Type: TypeCollateralMoved, Attributes: map[string]string{
		"ilk": e.Ilk,
		"src": e.Src.Hex(),
		"dst": e.Dst.Hex(),
		"wad": amount(e.Wad),
	}}
}

// StableMoved records an internal stable transfer [rad].
type StableMoved struct {
	Src common.Address
	Dst common.Address
	Rad *uint256.Int
}

func (StableMoved) EventType() string { return TypeStableMoved }

func (e StableMoved) Event() *types.Event {
	return &types.Event{Type: TypeStableMoved, Attributes: map[string]string{
		"src": e.Src.Hex(),
		"dst": e.Dst.Hex(),
		"rad": amount(e.Rad),
	}}
}

// PositionModified is raised by every successful frob with the resulting
// position.
type PositionModified struct {
	Ilk       string
	Urn       common.Address
	GemSrc    common.Address
	StableDst common.Address
	Dink      *big.Int
	Dart      *big.Int
	Ink       *uint256.Int
	Art       *uint256.Int
}

func (PositionModified) EventType() string { return TypePositionModified }

func (e PositionModified) Event() *types.Event {
	return &types.Event{Type: TypePositionModified, Attributes: map[string]string{
		"ilk":       e.Ilk,
		"urn":       e.Urn.Hex(),
		"gemSrc":    e.GemSrc.Hex(),
		"stableDst": e.StableDst.Hex(),
		"dink":      delta(e.Dink),
		"dart":      delta(e.Dart),
		"ink":       amount(e.Ink),
		"art":       amount(e.Art),
	}}
}

type PositionForked struct {
	Ilk  string
	Src  common.Address
	Dst  common.Address
	Dink *big.Int
	Dart *big.Int
}

func (PositionForked) EventType() string { return TypePositionForked }

func (e PositionForked) Event() *types.Event {
	return &types.Event{Type: TypePositionForked, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"src":  e.Src.Hex(),
		"dst":  e.Dst.Hex(),
		"dink": delta(e.Dink),
		"dart": delta(e.Dart),
	}}
}

type PositionGrabbed struct {
	Ilk      string
	Urn      common.Address
	GemDst   common.Address
	SinDst   common.Address
	Dink     *big.Int
	Dart     *big.Int
	DebtRate *uint256.Int
}

func (PositionGrabbed) EventType() string { return TypePositionGrabbed }

func (e PositionGrabbed) Event() *types.Event {
	return &types.Event{Type: TypePositionGrabbed, Attributes: map[string]string{
		"ilk":    e.Ilk,
		"urn":    e.Urn.Hex(),
		"gemDst": e.GemDst.Hex(),
		"sinDst": e.SinDst.Hex(),
		"dink":   delta(e.Dink),
		"dart":   delta(e.Dart),
		"rate":   amount(e.DebtRate),
	}}
}

type DebtHealed struct {
	Usr common.Address
	Rad *uint256.Int
}

func (DebtHealed) EventType() string { return TypeDebtHealed }

func (e DebtHealed) Event() *types.Event {
	return &types.Event{Type: TypeDebtHealed, Attributes: map[string]string{
		"usr": e.Usr.Hex(),
		"rad": amount(e.Rad),
	}}
}

type UnbackedMinted struct {
	SinHolder    common.Address
	StableHolder common.Address
	Rad          *uint256.Int
}

func (UnbackedMinted) EventType() string { return TypeUnbackedMinted }

func (e UnbackedMinted) Event() *types.Event {
	return &types.Event{Type: TypeUnbackedMinted, Attributes: map[string]string{
		"sin":    e.SinHolder.Hex(),
		"stable": e.StableHolder.Hex(),
		"rad":    amount(e.Rad),
	}}
}

type RateAccrued struct {
	Ilk   string
	Usr   common.Address
	Delta *big.Int
	Rate  *uint256.Int
}

func (RateAccrued) EventType() string { return TypeRateAccrued }

func (e RateAccrued) Event() *types.Event {
	return &types.Event{Type: TypeRateAccrued, Attributes: map[string]string{
		"ilk":   e.Ilk,
		"usr":   e.Usr.Hex(),
		"delta": delta(e.Delta),
		"rate":  amount(e.Rate),
	}}
}

type PricePoked struct {
	Ilk  string
	Val  *uint256.Int
	Spot *uint256.Int
}

func (PricePoked) EventType() string { return TypePricePoked }

func (e PricePoked) Event() *types.Event {
	return &types.Event{Type: TypePricePoked, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"val":  amount(e.Val),
		"spot": amount(e.Spot),
	}}
}

type FeeDripped struct {
	Ilk  string
	Rate *uint256.Int
	Rho  uint64
}

func (FeeDripped) EventType() string { return TypeFeeDripped }

func (e FeeDripped) Event() *types.Event {
	return &types.Event{Type: TypeFeeDripped, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"rate": amount(e.Rate),
		"rho":  formatUint(e.Rho),
	}}
}

type Barked struct {
	Ilk     string
	Urn     common.Address
	Ink     *uint256.Int
	Art     *uint256.Int
	Due     *uint256.Int
	Clipper common.Address
	ID      uint64
}

func (Barked) EventType() string { return TypeBarked }

func (e Barked) Event() *types.Event {
	return &types.Event{Type: TypeBarked, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"urn":  e.Urn.Hex(),
		"ink":  amount(e.Ink),
		"art":  amount(e.Art),
		"due":  amount(e.Due),
		"clip": e.Clipper.Hex(),
		"id":   formatUint(e.ID),
	}}
}

type RoomRestored struct {
	Ilk string
	Rad *uint256.Int
}

func (RoomRestored) EventType() string { return TypeRoomRestored }

func (e RoomRestored) Event() *types.Event {
	return &types.Event{Type: TypeRoomRestored, Attributes: map[string]string{
		"ilk": e.Ilk,
		"rad": amount(e.Rad),
	}}
}

// AuctionKicked and AuctionReset share a shape: the sale parameters after
// the call and the incentive paid to the keeper.
type AuctionKicked struct {
	Ilk  string
	ID   uint64
	Top  *uint256.Int
	Tab  *uint256.Int
	Lot  *uint256.Int
	Usr  common.Address
	Kpr  common.Address
	Coin *uint256.Int
}

func (AuctionKicked) EventType() string { return TypeAuctionKicked }

func (e AuctionKicked) Event() *types.Event {
	return auctionEvent(TypeAuctionKicked, e)
}

type AuctionReset AuctionKicked

func (AuctionReset) EventType() string { return TypeAuctionReset }

func (e AuctionReset) Event() *types.Event {
	return auctionEvent(TypeAuctionReset, AuctionKicked(e))
}

func auctionEvent(kind string, e AuctionKicked) *types.Event {
	return &types.Event{Type: kind, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"id":   formatUint(e.ID),
		"top":  amount(e.Top),
		"tab":  amount(e.Tab),
		"lot":  amount(e.Lot),
		"usr":  e.Usr.Hex(),
		"kpr":  e.Kpr.Hex(),
		"coin": amount(e.Coin),
	}}
}

type AuctionTaken struct {
	Ilk   string
	ID    uint64
	Max   *uint256.Int
	Price *uint256.Int
	Owe   *uint256.Int
	Tab   *uint256.Int
	Lot   *uint256.Int
	Usr   common.Address
	Buyer common.Address
}

func (AuctionTaken) EventType() string { return TypeAuctionTaken }

func (e AuctionTaken) Event() *types.Event {
	return &types.Event{Type: TypeAuctionTaken, Attributes: map[string]string{
		"ilk":   e.Ilk,
		"id":    formatUint(e.ID),
		"max":   amount(e.Max),
		"price": amount(e.Price),
		"owe":   amount(e.Owe),
		"tab":   amount(e.Tab),
		"lot":   amount(e.Lot),
		"usr":   e.Usr.Hex(),
		"buyer": e.Buyer.Hex(),
	}}
}

type AuctionYanked struct {
	Ilk string
	ID  uint64
	Lot *uint256.Int
}

func (AuctionYanked) EventType() string { return TypeAuctionYanked }

func (e AuctionYanked) Event() *types.Event {
	return &types.Event{Type: TypeAuctionYanked, Attributes: map[string]string{
		"ilk": e.Ilk,
		"id":  formatUint(e.ID),
		"lot": amount(e.Lot),
	}}
}

type DebtQueued struct {
	Era uint64
	Tab *uint256.Int
}

func (DebtQueued) EventType() string { return TypeDebtQueued }

func (e DebtQueued) Event() *types.Event {
	return &types.Event{Type: TypeDebtQueued, Attributes: map[string]string{
		"era": formatUint(e.Era),
		"tab": amount(e.Tab),
	}}
}

type DebtReleased DebtQueued

func (DebtReleased) EventType() string { return TypeDebtReleased }

func (e DebtReleased) Event() *types.Event {
	return &types.Event{Type: TypeDebtReleased, Attributes: map[string]string{
		"era": formatUint(e.Era),
		"tab": amount(e.Tab),
	}}
}

type SurplusFlapped struct {
	Sink   common.Address
	Amount *uint256.Int
}

func (SurplusFlapped) EventType() string { return TypeSurplusFlapped }

func (e SurplusFlapped) Event() *types.Event {
	return &types.Event{Type: TypeSurplusFlapped, Attributes: map[string]string{
		"sink":   e.Sink.Hex(),
		"amount": amount(e.Amount),
	}}
}

// Typed is implemented by every CDP event.
type Typed interface {
	EventType() string
	Event() *types.Event
}
