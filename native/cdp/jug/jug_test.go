package jug

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
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vowAdr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

const gold = "GOLD-A"

func wad(s string) *uint256.Int { return fixed.MustParse(s, fixed.WadDecimals) }
func ray(s string) *uint256.Int { return fixed.MustParse(s, fixed.RayDecimals) }
func rad(s string) *uint256.Int { return fixed.MustParse(s, fixed.RadDecimals) }

func setup(t *testing.T) (*Jug, *vat.Vat, *nativecommon.ManualClock) {
	t.Helper()
	journal := nativecommon.NewJournal(nil)
	clock := nativecommon.NewManualClock(10_000)
	ledger := vat.New(journal, gov)
	self := nativecommon.ModuleAddress(moduleName)
	j := New(journal, ledger, clock, self, gov)
	steps := []error{
		ledger.Rely(gov, self),
		ledger.Init(gov, gold),
		ledger.File(gov, "Line", rad("1000")),
		ledger.FileIlk(gov, gold, "line", rad("1000")),
		ledger.FileIlk(gov, gold, "spot", ray("1")),
		ledger.Slip(gov, gold, alice, fixed.Signed(wad("100"))),
		ledger.AdjustPosition(alice, gold, alice, fixed.Signed(wad("100")), fixed.Signed(wad("50"))),
		j.Init(gov, gold),
		j.FileVow(gov, vowAdr),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("setup step %d: %v", i, err)
		}
	}
	return j, ledger, clock
}

func TestDripCompoundsPerSecond(t *testing.T) {
	j, ledger, clock := setup(t)
	if err := j.FileIlk(gov, gold, "duty", ray("1.05")); err != nil {
		t.Fatalf("file duty: %v", err)
	}
	clock.Advance(2)
	rate, err := j.Drip(alice, gold)
	if err != nil {
		t.Fatalf("drip: %v", err)
	}
	if !rate.Eq(ray("1.1025")) {
		t.Fatalf("unexpected rate %s", fixed.Format(rate, fixed.RayDecimals))
	}
	// 50 art * 0.1025 rate increase lands with the vow.
	if !ledger.Stable(vowAdr).Eq(rad("5.125")) {
		t.Fatalf("unexpected fee income %s", fixed.Format(ledger.Stable(vowAdr), fixed.RadDecimals))
	}
	again, err := j.Drip(alice, gold)
	if err != nil || !again.Eq(rate) {
		t.Fatalf("second drip in the same second must be a no-op: %v %v", again, err)
	}
	if !ledger.Stable(vowAdr).Eq(rad("5.125")) {
		t.Fatalf("no-op drip changed fee income")
	}
}

func TestDripUsesBase(t *testing.T) {
	j, _, clock := setup(t)
	if err := j.File(gov, "base", ray("0.05")); err != nil {
		t.Fatalf("file base: %v", err)
	}
	clock.Advance(1)
	rate, err := j.Drip(alice, gold)
	if err != nil {
		t.Fatalf("drip: %v", err)
	}
	if !rate.Eq(ray("1.05")) {
		t.Fatalf("unexpected rate %s", fixed.Format(rate, fixed.RayDecimals))
	}
}

func TestDutyRequiresFreshDrip(t *testing.T) {
	j, _, clock := setup(t)
	clock.Advance(10)
	err := j.FileIlk(gov, gold, "duty", ray("1.01"))
	if !errors.Is(err, cdperrors.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if _, err := j.Drip(alice, gold); err != nil {
		t.Fatalf("drip: %v", err)
	}
	if err := j.FileIlk(gov, gold, "duty", ray("1.01")); err != nil {
		t.Fatalf("duty after drip: %v", err)
	}
	duty, rho, _ := j.Duty(gold)
	if !duty.Eq(ray("1.01")) || rho != clock.Now() {
		t.Fatalf("unexpected duty %s rho %d", duty.Dec(), rho)
	}
}

func TestDripFailsAtomicallyWhenLedgerCaged(t *testing.T) {
	j, ledger, clock := setup(t)
	if err := ledger.Cage(gov); err != nil {
		t.Fatalf("cage: %v", err)
	}
	_, rhoBefore, _ := j.Duty(gold)
	clock.Advance(5)
	if _, err := j.Drip(alice, gold); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
	if _, rho, _ := j.Duty(gold); rho != rhoBefore {
		t.Fatalf("failed drip must not move rho")
	}
}

func TestAdminErrors(t *testing.T) {
	j, _, _ := setup(t)
	if err := j.Init(gov, gold); !errors.Is(err, cdperrors.ErrIlkAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	if err := j.FileIlk(gov, gold, "rate", ray("1")); !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
		t.Fatalf("expected unrecognized, got %v", err)
	}
	if err := j.File(alice, "base", ray("1")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if _, err := j.Drip(alice, "SILVER-A"); !errors.Is(err, cdperrors.ErrIlkNotInitialized) {
		t.Fatalf("expected uninitialized, got %v", err)
	}
	snap := j.Export()
	if snap.Vow != vowAdr || len(snap.Ilks) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	restored := New(nil, nil, nil, common.Address{}, common.Address{})
	restored.Restore(snap)
	if restored.Vow() != vowAdr {
		t.Fatalf("restore lost vow")
	}
}
