package vat

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

var (
	gov   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vow   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

const gold = "GOLD-A"

func wad(s string) *uint256.Int { return fixed.MustParse(s, fixed.WadDecimals) }
func ray(s string) *uint256.Int { return fixed.MustParse(s, fixed.RayDecimals) }
func rad(s string) *uint256.Int { return fixed.MustParse(s, fixed.RadDecimals) }

func dwad(s string) *big.Int {
	if len(s) > 0 && s[0] == '-' {
		return fixed.Neg(wad(s[1:]))
	}
	return fixed.Signed(wad(s))
}

type recorder struct{ seen []events.Event }

func (r *recorder) Emit(evt events.Event) { r.seen = append(r.seen, evt) }

func newTestVat(t *testing.T) (*Vat, *recorder) {
	t.Helper()
	rec := &recorder{}
	v := New(nativecommon.NewJournal(rec), gov)
	mustOK(t, v.Init(gov, gold))
	mustOK(t, v.File(gov, "Line", rad("1000")))
	mustOK(t, v.FileIlk(gov, gold, "line", rad("1000")))
	mustOK(t, v.FileIlk(gov, gold, "spot", ray("1")))
	mustOK(t, v.FileIlk(gov, gold, "dust", rad("10")))
	mustOK(t, v.Slip(gov, gold, alice, dwad("200")))
	rec.seen = nil
	return v, rec
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func checkConservation(t *testing.T, v *Vat) {
	t.Helper()
	backed := new(uint256.Int)
	for _, name := range v.Ilks() {
		rec, _ := v.Ilk(name)
		sum := new(uint256.Int)
		for _, owner := range v.Urns(name) {
			sum.Add(sum, v.Urn(name, owner).Art)
		}
		if !sum.Eq(rec.Art) {
			t.Fatalf("ilk %s: sum of urn art %s != ilk art %s", name, sum.Dec(), rec.Art.Dec())
		}
		owed, _ := fixed.Mul(rec.Art, rec.Rate)
		backed.Add(backed, owed)
	}
	total := new(uint256.Int).Add(backed, v.Vice())
	if !total.Eq(v.Debt()) {
		t.Fatalf("conservation broken: backed+vice %s != debt %s", total.Dec(), v.Debt().Dec())
	}
	stable := new(uint256.Int)
	for _, entry := range v.Export().Stable {
		stable.Add(stable, entry.Amount)
	}
	if !stable.Eq(v.Debt()) {
		t.Fatalf("stable supply %s != debt %s", stable.Dec(), v.Debt().Dec())
	}
	sin := new(uint256.Int)
	for _, entry := range v.Export().Sin {
		sin.Add(sin, entry.Amount)
	}
	if !sin.Eq(v.Vice()) {
		t.Fatalf("sin supply %s != vice %s", sin.Dec(), v.Vice().Dec())
	}
}

func TestLockAndDraw(t *testing.T) {
	v, rec := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))

	urn := v.Urn(gold, alice)
	if !urn.Ink.Eq(wad("100")) || !urn.Art.Eq(wad("50")) {
		t.Fatalf("unexpected urn: ink=%s art=%s", urn.Ink.Dec(), urn.Art.Dec())
	}
	if !v.Gem(gold, alice).Eq(wad("100")) {
		t.Fatalf("unexpected free collateral %s", v.Gem(gold, alice).Dec())
	}
	if !v.Stable(alice).Eq(rad("50")) || !v.Debt().Eq(rad("50")) {
		t.Fatalf("unexpected stable %s debt %s", v.Stable(alice).Dec(), v.Debt().Dec())
	}
	if len(rec.seen) != 1 || rec.seen[0].EventType() != events.TypePositionModified {
		t.Fatalf("expected one frob event, got %+v", rec.seen)
	}
	checkConservation(t, v)

	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("-100"), dwad("-50")))
	if !v.Urn(gold, alice).Empty() || !v.Debt().IsZero() {
		t.Fatalf("expected closed position")
	}
	if len(v.Urns(gold)) != 0 {
		t.Fatalf("closed urns must not be listed")
	}
	checkConservation(t, v)
}

func TestFrobUnsafeIsAtomic(t *testing.T) {
	v, rec := newTestVat(t)
	err := v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("101"))
	if !errors.Is(err, cdperrors.ErrUnsafe) {
		t.Fatalf("expected ErrUnsafe, got %v", err)
	}
	if !v.Urn(gold, alice).Empty() || !v.Gem(gold, alice).Eq(wad("200")) || !v.Debt().IsZero() {
		t.Fatalf("failed frob must not change state")
	}
	if len(rec.seen) != 0 {
		t.Fatalf("failed frob must not emit events")
	}

	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))
	if err := v.AdjustPosition(alice, gold, alice, dwad("-60"), nil); !errors.Is(err, cdperrors.ErrUnsafe) {
		t.Fatalf("freeing collateral below the threshold must fail, got %v", err)
	}
}

func TestCeilings(t *testing.T) {
	v, _ := newTestVat(t)
	mustOK(t, v.FileIlk(gov, gold, "line", rad("40")))
	if err := v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")); !errors.Is(err, cdperrors.ErrCeilingExceeded) {
		t.Fatalf("expected ilk ceiling, got %v", err)
	}
	mustOK(t, v.FileIlk(gov, gold, "line", rad("1000")))
	mustOK(t, v.File(gov, "Line", rad("40")))
	if err := v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")); !errors.Is(err, cdperrors.ErrCeilingExceeded) {
		t.Fatalf("expected global ceiling, got %v", err)
	}
	mustOK(t, v.File(gov, "Line", rad("1000")))
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))

	// Lowering the ceiling below outstanding debt still permits repayment.
	mustOK(t, v.FileIlk(gov, gold, "line", new(uint256.Int)))
	mustOK(t, v.AdjustPosition(alice, gold, alice, nil, dwad("-20")))
	if err := v.AdjustPosition(alice, gold, alice, nil, dwad("1")); !errors.Is(err, cdperrors.ErrCeilingExceeded) {
		t.Fatalf("disabled ilk must reject new debt, got %v", err)
	}
}

func TestDust(t *testing.T) {
	v, _ := newTestVat(t)
	if err := v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("5")); !errors.Is(err, cdperrors.ErrBelowDust) {
		t.Fatalf("expected ErrBelowDust, got %v", err)
	}
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("20")))
	if err := v.AdjustPosition(alice, gold, alice, nil, dwad("-15")); !errors.Is(err, cdperrors.ErrBelowDust) {
		t.Fatalf("partial repay into dust must fail, got %v", err)
	}
	mustOK(t, v.AdjustPosition(alice, gold, alice, nil, dwad("-20")))
}

func TestConsent(t *testing.T) {
	v, _ := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))

	if err := v.AdjustPosition(bob, gold, alice, nil, dwad("10")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("stranger must not draw on alice's urn, got %v", err)
	}
	if err := v.Frob(bob, gold, bob, alice, bob, dwad("10"), nil); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("stranger must not lock alice's collateral, got %v", err)
	}
	// Anyone may repay on behalf of the owner with their own balance.
	mustOK(t, v.Move(alice, alice, bob, rad("10")))
	mustOK(t, v.Frob(bob, gold, alice, bob, bob, nil, dwad("-10")))
	if !v.Urn(gold, alice).Art.Eq(wad("40")) {
		t.Fatalf("expected repaid art, got %s", v.Urn(gold, alice).Art.Dec())
	}

	mustOK(t, v.Hope(alice, bob))
	mustOK(t, v.Frob(bob, gold, alice, alice, bob, nil, dwad("5")))
	if !v.Stable(bob).Eq(rad("5")) {
		t.Fatalf("delegate should receive drawn stable, got %s", v.Stable(bob).Dec())
	}
	mustOK(t, v.Nope(alice, bob))
	if v.CanModify(alice, bob) {
		t.Fatalf("nope must revoke delegation")
	}
	checkConservation(t, v)
}

func TestTransfersEmitEvents(t *testing.T) {
	v, rec := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))
	rec.seen = nil

	if err := v.Flux(bob, gold, alice, bob, wad("5")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if len(rec.seen) != 0 {
		t.Fatalf("rejected flux must not emit")
	}

	mustOK(t, v.Flux(alice, gold, alice, bob, wad("5")))
	mustOK(t, v.Move(alice, alice, bob, rad("10")))
	if len(rec.seen) != 2 {
		t.Fatalf("expected two events, got %+v", rec.seen)
	}
	flux := events.Flatten(rec.seen[0])
	if flux.Type != events.TypeCollateralMoved || flux.Ilk() != gold || flux.Attr("src") != alice.Hex() ||
		flux.Attr("dst") != bob.Hex() || flux.Attr("wad") != wad("5").Dec() {
		t.Fatalf("unexpected flux event %+v", flux)
	}
	move := events.Flatten(rec.seen[1])
	if move.Type != events.TypeStableMoved || move.Attr("dst") != bob.Hex() || move.Attr("rad") != rad("10").Dec() {
		t.Fatalf("unexpected move event %+v", move)
	}
}

func TestCageAllowsOnlyRiskReduction(t *testing.T) {
	v, _ := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))
	mustOK(t, v.Cage(gov))
	if v.Live() {
		t.Fatalf("expected caged ledger")
	}
	if err := v.AdjustPosition(alice, gold, alice, nil, dwad("1")); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
	if err := v.AdjustPosition(alice, gold, alice, dwad("-1"), nil); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("10"), dwad("-20")))
	if err := v.FileIlk(gov, gold, "spot", ray("2")); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected ErrNotLive on file, got %v", err)
	}
}

func TestForkAndMovePosition(t *testing.T) {
	v, _ := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))
	if err := v.Fork(alice, gold, alice, bob, dwad("50"), dwad("25")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("fork needs both owners, got %v", err)
	}
	mustOK(t, v.Hope(bob, alice))
	if err := v.Fork(alice, gold, alice, bob, dwad("10"), dwad("25")); !errors.Is(err, cdperrors.ErrUnsafe) {
		t.Fatalf("expected unsafe dst, got %v", err)
	}
	if err := v.Fork(alice, gold, alice, bob, dwad("50"), dwad("45")); !errors.Is(err, cdperrors.ErrBelowDust) {
		t.Fatalf("expected dusty src, got %v", err)
	}
	mustOK(t, v.Fork(alice, gold, alice, bob, dwad("50"), dwad("25")))
	if !v.Urn(gold, bob).Art.Eq(wad("25")) || !v.Urn(gold, alice).Ink.Eq(wad("50")) {
		t.Fatalf("unexpected split")
	}
	mustOK(t, v.MovePosition(alice, gold, alice, bob))
	if !v.Urn(gold, alice).Empty() || !v.Urn(gold, bob).Ink.Eq(wad("100")) {
		t.Fatalf("move must hand over the whole position")
	}
	checkConservation(t, v)
}

func TestGrabSuckHealFold(t *testing.T) {
	v, rec := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))

	if err := v.Grab(alice, gold, alice, bob, vow, dwad("-100"), dwad("-50")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("grab must be privileged, got %v", err)
	}
	mustOK(t, v.Grab(gov, gold, alice, bob, vow, dwad("-100"), dwad("-50")))
	if !v.Urn(gold, alice).Empty() || !v.Gem(gold, bob).Eq(wad("100")) {
		t.Fatalf("grab must seize the position")
	}
	if !v.Sin(vow).Eq(rad("50")) || !v.Vice().Eq(rad("50")) {
		t.Fatalf("unexpected sin %s vice %s", v.Sin(vow).Dec(), v.Vice().Dec())
	}
	checkConservation(t, v)

	mustOK(t, v.Suck(gov, vow, bob, rad("5")))
	if !v.Stable(bob).Eq(rad("5")) || !v.Vice().Eq(rad("55")) {
		t.Fatalf("unexpected suck result")
	}
	checkConservation(t, v)

	if err := v.Heal(vow, rad("1")); !errors.Is(err, cdperrors.ErrInsufficientSurplus) {
		t.Fatalf("heal without surplus must fail, got %v", err)
	}
	mustOK(t, v.Move(alice, alice, vow, rad("30")))
	mustOK(t, v.Heal(vow, rad("30")))
	if !v.Sin(vow).Eq(rad("25")) || !v.Debt().Eq(rad("25")) {
		t.Fatalf("unexpected heal result: sin %s debt %s", v.Sin(vow).Dec(), v.Debt().Dec())
	}
	if err := v.Heal(vow, rad("26")); !errors.Is(err, cdperrors.ErrInsufficientDebt) {
		t.Fatalf("heal beyond sin must fail, got %v", err)
	}
	checkConservation(t, v)

	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("20")))
	rec.seen = nil
	mustOK(t, v.Fold(gov, gold, vow, fixed.Signed(ray("0.1"))))
	ilk, _ := v.Ilk(gold)
	if !ilk.Rate.Eq(ray("1.1")) {
		t.Fatalf("unexpected rate %s", ilk.Rate.Dec())
	}
	if !v.Stable(vow).Eq(rad("2")) {
		t.Fatalf("fee must accrue to vow, got %s", v.Stable(vow).Dec())
	}
	if len(rec.seen) != 1 || rec.seen[0].EventType() != events.TypeRateAccrued {
		t.Fatalf("expected fold event")
	}
	owed, _ := v.OwedDebt(gold, alice)
	if !owed.Eq(rad("22")) {
		t.Fatalf("owed debt must include fees, got %s", owed.Dec())
	}
	checkConservation(t, v)
}

func TestAdminErrors(t *testing.T) {
	v, _ := newTestVat(t)
	if err := v.Init(gov, gold); !errors.Is(err, cdperrors.ErrIlkAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	if err := v.FileIlk(gov, gold, "chop", rad("1")); !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
		t.Fatalf("expected unrecognized param, got %v", err)
	}
	if err := v.File(alice, "Line", rad("1")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := v.AdjustPosition(alice, "SILVER-A", alice, dwad("1"), nil); !errors.Is(err, cdperrors.ErrIlkNotInitialized) {
		t.Fatalf("expected uninitialized ilk, got %v", err)
	}
	mustOK(t, v.Rely(gov, alice))
	mustOK(t, v.Deny(alice, gov))
	if v.IsWard(gov) || !v.IsWard(alice) {
		t.Fatalf("unexpected wards after rely/deny")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	v, _ := newTestVat(t)
	mustOK(t, v.AdjustPosition(alice, gold, alice, dwad("100"), dwad("50")))
	mustOK(t, v.Hope(alice, bob))
	mustOK(t, v.Suck(gov, vow, bob, rad("5")))

	snap := v.Export()
	restored := New(nil, common.Address{})
	restored.Restore(snap)
	if !reflect.DeepEqual(snap, restored.Export()) {
		t.Fatalf("restored ledger differs")
	}
	if !restored.CanModify(alice, bob) || !restored.IsWard(gov) {
		t.Fatalf("restored ledger lost permissions")
	}
	checkConservation(t, restored)
}
