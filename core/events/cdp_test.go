package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestBarkedEvent(t *testing.T) {
	urn := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	evt := Barked{
		Ilk: "GOLD-A",
		Urn: urn,
		Ink: uint256.NewInt(100),
		Art: uint256.NewInt(50),
		Due: uint256.NewInt(55),
		ID:  3,
	}.Event()
	if evt.Type != TypeBarked {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["urn"] != urn.Hex() || evt.Attributes["id"] != "3" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["ink"] != "100" || evt.Attributes["art"] != "50" || evt.Attributes["due"] != "55" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
}

func TestAuctionResetSharesKickShape(t *testing.T) {
	kick := AuctionKicked{Ilk: "GOLD-A", ID: 1, Top: uint256.NewInt(9), Tab: uint256.NewInt(8), Lot: uint256.NewInt(7)}
	reset := AuctionReset(kick)
	if reset.EventType() != TypeAuctionReset {
		t.Fatalf("unexpected type: %s", reset.EventType())
	}
	a, b := kick.Event(), reset.Event()
	if a.Type == b.Type {
		t.Fatalf("kick and reset must differ in type")
	}
	for key, value := range a.Attributes {
		if b.Attributes[key] != value {
			t.Fatalf("attribute %s: kick %q reset %q", key, value, b.Attributes[key])
		}
	}
	if b.Attributes["coin"] != "0" {
		t.Fatalf("nil coin should render as 0, got %q", b.Attributes["coin"])
	}
}

func TestSignedDeltas(t *testing.T) {
	evt := PositionModified{Ilk: "GOLD-A", Dink: big.NewInt(-5), Dart: nil}.Event()
	if evt.Attributes["dink"] != "-5" {
		t.Fatalf("unexpected dink: %s", evt.Attributes["dink"])
	}
	if evt.Attributes["dart"] != "0" {
		t.Fatalf("unexpected dart: %s", evt.Attributes["dart"])
	}
}

func TestEveryCDPEventIsTyped(t *testing.T) {
	all := []Typed{
		WardUpdated{}, ParamUpdated{}, IlkInitialized{}, ModuleCaged{},
		CollateralSlipped{}, CollateralMoved{}, StableMoved{}, PositionModified{}, PositionForked{}, PositionGrabbed{},
		DebtHealed{}, UnbackedMinted{}, RateAccrued{}, PricePoked{}, FeeDripped{},
		Barked{}, RoomRestored{}, AuctionKicked{}, AuctionTaken{}, AuctionReset{},
		AuctionYanked{}, DebtQueued{}, DebtReleased{}, SurplusFlapped{},
	}
	seen := map[string]bool{}
	for _, e := range all {
		evt := e.Event()
		if evt.Type != e.EventType() {
			t.Fatalf("%T: event type %s does not match %s", e, evt.Type, e.EventType())
		}
		if seen[evt.Type] {
			t.Fatalf("duplicate event type %s", evt.Type)
		}
		seen[evt.Type] = true
	}
}

type untyped struct{}

func (untyped) EventType() string { return "custom" }

type counter struct{ n int }

func (c *counter) Emit(Event) { c.n++ }

func TestFanoutAndFlatten(t *testing.T) {
	a, b := &counter{}, &counter{}
	Fanout{a, nil, b}.Emit(untyped{})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("fanout delivered %d/%d", a.n, b.n)
	}
	if flat := Flatten(untyped{}); flat.Type != "custom" || len(flat.Attributes) != 0 {
		t.Fatalf("unexpected flat event: %+v", flat)
	}
	flat := Flatten(RoomRestored{Ilk: "GOLD-A", Rad: uint256.NewInt(4)})
	if flat.Ilk() != "GOLD-A" || flat.Attr("rad") != "4" {
		t.Fatalf("unexpected flat event: %+v", flat)
	}
}
