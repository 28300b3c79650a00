package spot

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/fixed"
	"cdpvault/native/cdp/vat"
	nativecommon "cdpvault/native/common"
)

var (
	gov    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	keeper = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

const gold = "GOLD-A"

func wad(s string) *uint256.Int { return fixed.MustParse(s, fixed.WadDecimals) }
func ray(s string) *uint256.Int { return fixed.MustParse(s, fixed.RayDecimals) }

func setup(t *testing.T) (*Spotter, *vat.Vat, *ManualFeed, *nativecommon.ManualClock) {
	t.Helper()
	journal := nativecommon.NewJournal(nil)
	clock := nativecommon.NewManualClock(1_000)
	ledger := vat.New(journal, gov)
	self := nativecommon.ModuleAddress(moduleName)
	s := New(journal, ledger, self, gov)
	if err := ledger.Rely(gov, self); err != nil {
		t.Fatalf("rely: %v", err)
	}
	if err := ledger.Init(gov, gold); err != nil {
		t.Fatalf("init: %v", err)
	}
	feed := NewManualFeed(clock, 3_600)
	if err := s.SetFeed(gov, gold, feed); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if err := s.FileIlk(gov, gold, "mat", ray("1.375")); err != nil {
		t.Fatalf("file mat: %v", err)
	}
	return s, ledger, feed, clock
}

func TestPokePublishesSpot(t *testing.T) {
	s, ledger, feed, _ := setup(t)
	if err := feed.Publish(wad("0.55")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Poke(keeper, gold); err != nil {
		t.Fatalf("poke: %v", err)
	}
	ilk, _ := ledger.Ilk(gold)
	if !ilk.Spot.Eq(ray("0.4")) {
		t.Fatalf("unexpected spot %s", fixed.Format(ilk.Spot, fixed.RayDecimals))
	}

	if err := s.File(gov, "par", ray("2")); err != nil {
		t.Fatalf("file par: %v", err)
	}
	if err := s.Poke(keeper, gold); err != nil {
		t.Fatalf("poke: %v", err)
	}
	ilk, _ = ledger.Ilk(gold)
	if !ilk.Spot.Eq(ray("0.2")) {
		t.Fatalf("par must scale spot, got %s", fixed.Format(ilk.Spot, fixed.RayDecimals))
	}
	price, err := s.FeedPrice(gold)
	if err != nil || !price.Eq(ray("0.275")) {
		t.Fatalf("unexpected feed price %v err %v", price, err)
	}
}

func TestPokeKeepsLastSpotWhenFeedUnusable(t *testing.T) {
	s, ledger, feed, clock := setup(t)
	if err := s.Poke(keeper, gold); !errors.Is(err, cdperrors.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for unset feed, got %v", err)
	}
	if err := feed.Publish(wad("0.55")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Poke(keeper, gold); err != nil {
		t.Fatalf("poke: %v", err)
	}
	clock.Advance(3_601)
	if feed.Status() != PriceStatusStale {
		t.Fatalf("expected stale feed, got %s", feed.Status())
	}
	err := s.Poke(keeper, gold)
	if !errors.Is(err, cdperrors.ErrUnavailable) || !cdperrors.IsTransient(err) {
		t.Fatalf("expected transient ErrUnavailable, got %v", err)
	}
	ilk, _ := ledger.Ilk(gold)
	if !ilk.Spot.Eq(ray("0.4")) {
		t.Fatalf("stale feed must keep the last spot, got %s", ilk.Spot.Dec())
	}
	if err := feed.Publish(new(uint256.Int)); !errors.Is(err, cdperrors.ErrInvalidParam) {
		t.Fatalf("zero price must be rejected, got %v", err)
	}
}

func TestAdmin(t *testing.T) {
	s, _, _, _ := setup(t)
	if err := s.FileIlk(keeper, gold, "mat", ray("2")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := s.File(gov, "vow", ray("1")); !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
		t.Fatalf("expected unrecognized param, got %v", err)
	}
	if err := s.Cage(gov); err != nil {
		t.Fatalf("cage: %v", err)
	}
	if err := s.File(gov, "par", ray("1")); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected not live, got %v", err)
	}
	snap := s.Export()
	if snap.Live || len(snap.Mats) != 1 || !snap.Mats[0].Mat.Eq(ray("1.375")) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
