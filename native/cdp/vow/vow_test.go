package vow

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
	gov   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	sink  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func rad(s string) *uint256.Int { return fixed.MustParse(s, fixed.RadDecimals) }

func setup(t *testing.T) (*Vow, *vat.Vat, *nativecommon.ManualClock) {
	t.Helper()
	journal := nativecommon.NewJournal(nil)
	clock := nativecommon.NewManualClock(50_000)
	ledger := vat.New(journal, gov)
	self := nativecommon.ModuleAddress(moduleName)
	v := New(journal, ledger, clock, self, gov)
	steps := []error{
		ledger.Suck(gov, self, alice, rad("50")),
		ledger.Suck(gov, alice, self, rad("80")),
		v.File(gov, "wait", uint256.NewInt(100)),
		v.Fess(gov, rad("50")),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("setup step %d: %v", i, err)
		}
	}
	return v, ledger, clock
}

func TestFlogWaitsForQueueDelay(t *testing.T) {
	v, _, clock := setup(t)
	era := clock.Now()
	if !v.Queued(era).Eq(rad("50")) || !v.Released().IsZero() {
		t.Fatalf("fessed debt must be queued")
	}
	clock.Advance(99)
	if err := v.Flog(alice, era); !errors.Is(err, cdperrors.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	clock.Advance(1)
	if err := v.Flog(alice, era); err != nil {
		t.Fatalf("flog: %v", err)
	}
	if !v.Queued(era).IsZero() || !v.QueuedTotal().IsZero() || !v.Released().Eq(rad("50")) {
		t.Fatalf("flogged debt must be released")
	}
	if len(v.Eras()) != 0 {
		t.Fatalf("unexpected eras %v", v.Eras())
	}
}

func TestHealNeedsReleasedDebtAndSurplus(t *testing.T) {
	v, ledger, clock := setup(t)
	if err := v.Heal(alice, rad("10")); !errors.Is(err, cdperrors.ErrInsufficientDebt) {
		t.Fatalf("queued debt cannot be healed, got %v", err)
	}
	era := clock.Now()
	clock.Advance(100)
	if err := v.Flog(alice, era); err != nil {
		t.Fatalf("flog: %v", err)
	}
	if err := v.Heal(alice, rad("60")); !errors.Is(err, cdperrors.ErrInsufficientDebt) {
		t.Fatalf("expected ErrInsufficientDebt, got %v", err)
	}
	if err := v.Heal(alice, rad("50")); err != nil {
		t.Fatalf("heal: %v", err)
	}
	if !ledger.Sin(v.Address()).IsZero() || !ledger.Stable(v.Address()).Eq(rad("30")) {
		t.Fatalf("unexpected balances after heal")
	}
	if err := v.Heal(alice, rad("40")); !errors.Is(err, cdperrors.ErrInsufficientSurplus) {
		t.Fatalf("expected ErrInsufficientSurplus, got %v", err)
	}
}

func TestFlapSendsSurplusToSink(t *testing.T) {
	v, ledger, clock := setup(t)
	if err := v.SetSink(gov, sink); err != nil {
		t.Fatalf("set sink: %v", err)
	}
	if _, err := v.Flap(alice); !errors.Is(err, cdperrors.ErrDebtOutstanding) {
		t.Fatalf("expected ErrDebtOutstanding, got %v", err)
	}
	era := clock.Now()
	clock.Advance(100)
	if err := v.Flog(alice, era); err != nil {
		t.Fatalf("flog: %v", err)
	}
	if err := v.Heal(alice, rad("50")); err != nil {
		t.Fatalf("heal: %v", err)
	}
	if err := v.File(gov, "hump", rad("10")); err != nil {
		t.Fatalf("file hump: %v", err)
	}
	lot, err := v.Flap(alice)
	if err != nil {
		t.Fatalf("flap: %v", err)
	}
	if !lot.Eq(rad("20")) || !ledger.Stable(sink).Eq(rad("20")) || !ledger.Stable(v.Address()).Eq(rad("10")) {
		t.Fatalf("unexpected flap lot %s", lot.Dec())
	}
	if err := v.File(gov, "bump", rad("5")); err != nil {
		t.Fatalf("file bump: %v", err)
	}
	if _, err := v.Flap(alice); !errors.Is(err, cdperrors.ErrInsufficientSurplus) {
		t.Fatalf("expected ErrInsufficientSurplus, got %v", err)
	}
	if err := v.Cage(gov); err != nil {
		t.Fatalf("cage: %v", err)
	}
	if _, err := v.Flap(alice); !errors.Is(err, cdperrors.ErrNotLive) {
		t.Fatalf("expected ErrNotLive, got %v", err)
	}
}

func TestAdminAndSnapshot(t *testing.T) {
	v, _, clock := setup(t)
	if err := v.Fess(alice, rad("1")); !errors.Is(err, cdperrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	if err := v.File(gov, "dump", rad("1")); !errors.Is(err, cdperrors.ErrUnrecognizedParam) {
		t.Fatalf("expected unrecognized, got %v", err)
	}
	clock.Advance(7)
	if err := v.Fess(gov, rad("3")); err != nil {
		t.Fatalf("fess: %v", err)
	}
	snap := v.Export()
	if len(snap.Queue) != 2 || snap.Wait != 100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	restored := New(nil, nil, nil, common.Address{}, common.Address{})
	restored.Restore(snap)
	if !restored.QueuedTotal().Eq(rad("53")) || restored.Wait() != 100 {
		t.Fatalf("restore lost the queue")
	}
}
