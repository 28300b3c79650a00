package vat

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/core/events"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

// Frob changes the position of u in ilk by dink collateral and dart
// normalised debt. Collateral is drawn from (or returned to) gemSrc and the
// debt change is paid out to (or taken from) stableDst.
//
// A change that neither adds debt nor removes collateral is always allowed,
// including after Cage. Anything else needs consent of u and must leave the
// position safe. Adding collateral needs consent of gemSrc and repaying needs
// consent of stableDst. Ceilings are only checked when debt grows.
func (v *Vat) Frob(caller common.Address, ilk string, u, gemSrc, stableDst common.Address, dink, dart *big.Int) error {
	return v.atomic("frob", func() error {
		return v.frob(caller, ilk, u, gemSrc, stableDst, orZero(dink), orZero(dart))
	})
}

// AdjustPosition is Frob with the owner acting as collateral source and debt
// destination.
func (v *Vat) AdjustPosition(caller common.Address, ilk string, owner common.Address, dink, dart *big.Int) error {
	return v.Frob(caller, ilk, owner, owner, owner, dink, dart)
}

func (v *Vat) frob(caller common.Address, ilk string, u, gemSrc, stableDst common.Address, dink, dart *big.Int) error {
	if err := fixed.CheckDelta(dink); err != nil {
		return err
	}
	if err := fixed.CheckDelta(dart); err != nil {
		return err
	}
	safer := dart.Sign() <= 0 && dink.Sign() >= 0
	if !v.live && !safer {
		return cdperrors.ErrNotLive
	}
	rec, ok := v.ilks[ilk]
	if !ok {
		return cdperrors.ErrIlkNotInitialized
	}
	if !safer && !v.wish(u, caller) {
		return fmt.Errorf("urn owner consent: %w", cdperrors.ErrNotAuthorized)
	}
	if dink.Sign() > 0 && !v.wish(gemSrc, caller) {
		return fmt.Errorf("collateral source consent: %w", cdperrors.ErrNotAuthorized)
	}
	if dart.Sign() < 0 && !v.wish(stableDst, caller) {
		return fmt.Errorf("stable source consent: %w", cdperrors.ErrNotAuthorized)
	}

	urn := v.urns[ilk][u].Clone()
	rec = rec.Clone()
	ink, err := shift(urn.Ink, dink, cdperrors.ErrInsufficientBalance)
	if err != nil {
		return fmt.Errorf("ink: %w", err)
	}
	art, err := shift(urn.Art, dart, cdperrors.ErrInsufficientBalance)
	if err != nil {
		return fmt.Errorf("art: %w", err)
	}
	ilkArt, err := fixed.AddDelta(rec.Art, dart)
	if err != nil {
		return err
	}
	dtab, err := fixed.MulDelta(rec.Rate, dart)
	if err != nil {
		return err
	}
	tab, err := fixed.Mul(art, rec.Rate)
	if err != nil {
		return err
	}
	debt, err := fixed.AddDelta(v.debt, dtab)
	if err != nil {
		return err
	}
	if dart.Sign() > 0 {
		total, err := fixed.Mul(ilkArt, rec.Rate)
		if err != nil {
			return err
		}
		if total.Gt(rec.Line) || debt.Gt(v.line) {
			return cdperrors.ErrCeilingExceeded
		}
	}
	if !safer {
		limit, err := fixed.Mul(ink, rec.Spot)
		if err != nil {
			return err
		}
		if tab.Gt(limit) {
			return cdperrors.ErrUnsafe
		}
	}
	if !art.IsZero() && tab.Lt(rec.Dust) {
		return cdperrors.ErrBelowDust
	}
	gem, err := shift(v.gem[ilk][gemSrc], new(big.Int).Neg(dink), cdperrors.ErrInsufficientBalance)
	if err != nil {
		return fmt.Errorf("gem: %w", err)
	}
	bal, err := shift(v.stable[stableDst], dtab, cdperrors.ErrInsufficientBalance)
	if err != nil {
		return fmt.Errorf("stable: %w", err)
	}

	rec.Art = ilkArt
	v.setUrn(ilk, u, Urn{Ink: ink, Art: art})
	nativecommon.AssignKey(v.journal, v.ilks, ilk, rec)
	nativecommon.Assign(v.journal, &v.debt, debt)
	v.setGem(ilk, gemSrc, gem)
	setBalance(v.journal, v.stable, stableDst, bal)
	v.journal.Emit(events.PositionModified{
		Ilk: ilk, Urn: u, GemSrc: gemSrc, StableDst: stableDst,
		Dink: new(big.Int).Set(dink), Dart: new(big.Int).Set(dart),
		Ink: fixed.Value(ink), Art: fixed.Value(art),
	})
	return nil
}

// Fork moves dink collateral and dart debt from the src position to the dst
// position. Both owners must consent and both positions must end safe and
// above dust. This is how positions are split, merged or handed over.
func (v *Vat) Fork(caller common.Address, ilk string, src, dst common.Address, dink, dart *big.Int) error {
	return v.atomic("fork", func() error {
		return v.fork(caller, ilk, src, dst, orZero(dink), orZero(dart))
	})
}

// MovePosition hands the whole position of src to dst.
func (v *Vat) MovePosition(caller common.Address, ilk string, src, dst common.Address) error {
	return v.atomic("fork", func() error {
		urn := v.urns[ilk][src].Clone()
		return v.fork(caller, ilk, src, dst, fixed.Signed(urn.Ink), fixed.Signed(urn.Art))
	})
}

func (v *Vat) fork(caller common.Address, ilk string, src, dst common.Address, dink, dart *big.Int) error {
	if err := fixed.CheckDelta(dink); err != nil {
		return err
	}
	if err := fixed.CheckDelta(dart); err != nil {
		return err
	}
	rec, ok := v.ilks[ilk]
	if !ok {
		return cdperrors.ErrIlkNotInitialized
	}
	if !v.wish(src, caller) || !v.wish(dst, caller) {
		return cdperrors.ErrNotAuthorized
	}
	from := v.urns[ilk][src].Clone()
	to := v.urns[ilk][dst].Clone()
	negInk, negArt := new(big.Int).Neg(dink), new(big.Int).Neg(dart)

	var err error
	if from.Ink, err = shift(from.Ink, negInk, cdperrors.ErrInsufficientBalance); err != nil {
		return fmt.Errorf("src ink: %w", err)
	}
	if from.Art, err = shift(from.Art, negArt, cdperrors.ErrInsufficientBalance); err != nil {
		return fmt.Errorf("src art: %w", err)
	}
	if src == dst {
		from = v.urns[ilk][src].Clone()
		to = from
	} else {
		if to.Ink, err = shift(to.Ink, dink, cdperrors.ErrInsufficientBalance); err != nil {
			return fmt.Errorf("dst ink: %w", err)
		}
		if to.Art, err = shift(to.Art, dart, cdperrors.ErrInsufficientBalance); err != nil {
			return fmt.Errorf("dst art: %w", err)
		}
	}
	for _, side := range []struct {
		name string
		urn  Urn
	}{{"src", from}, {"dst", to}} {
		if err := checkSafeAndDust(rec, side.urn); err != nil {
			return fmt.Errorf("%s: %w", side.name, err)
		}
	}
	v.setUrn(ilk, src, from)
	v.setUrn(ilk, dst, to)
	v.journal.Emit(events.PositionForked{
		Ilk: ilk, Src: src, Dst: dst,
		Dink: new(big.Int).Set(dink), Dart: new(big.Int).Set(dart),
	})
	return nil
}

func checkSafeAndDust(rec Ilk, urn Urn) error {
	tab, err := fixed.Mul(urn.Art, rec.Rate)
	if err != nil {
		return err
	}
	limit, err := fixed.Mul(urn.Ink, rec.Spot)
	if err != nil {
		return err
	}
	if tab.Gt(limit) {
		return cdperrors.ErrUnsafe
	}
	if !urn.Art.IsZero() && tab.Lt(rec.Dust) {
		return cdperrors.ErrBelowDust
	}
	return nil
}

// Grab is the forced counterpart of Frob used by liquidation: it applies the
// deltas to the position of u without safety, dust or consent checks,
// credits the collateral to gemDst and books the debt as sin of sinDst.
func (v *Vat) Grab(caller common.Address, ilk string, u, gemDst, sinDst common.Address, dink, dart *big.Int) error {
	return v.atomic("grab", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		dink, dart := orZero(dink), orZero(dart)
		if err := fixed.CheckDelta(dink); err != nil {
			return err
		}
		if err := fixed.CheckDelta(dart); err != nil {
			return err
		}
		rec, ok := v.ilks[ilk]
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		rec = rec.Clone()
		urn := v.urns[ilk][u].Clone()
		var err error
		if urn.Ink, err = shift(urn.Ink, dink, cdperrors.ErrInsufficientBalance); err != nil {
			return fmt.Errorf("ink: %w", err)
		}
		if urn.Art, err = shift(urn.Art, dart, cdperrors.ErrInsufficientBalance); err != nil {
			return fmt.Errorf("art: %w", err)
		}
		if rec.Art, err = fixed.AddDelta(rec.Art, dart); err != nil {
			return err
		}
		dtab, err := fixed.MulDelta(rec.Rate, dart)
		if err != nil {
			return err
		}
		negTab := new(big.Int).Neg(dtab)
		gem, err := shift(v.gem[ilk][gemDst], new(big.Int).Neg(dink), cdperrors.ErrInsufficientBalance)
		if err != nil {
			return fmt.Errorf("gem: %w", err)
		}
		sin, err := shift(v.sin[sinDst], negTab, cdperrors.ErrInsufficientDebt)
		if err != nil {
			return err
		}
		vice, err := shift(v.vice, negTab, cdperrors.ErrInsufficientDebt)
		if err != nil {
			return err
		}
		v.setUrn(ilk, u, urn)
		nativecommon.AssignKey(v.journal, v.ilks, ilk, rec)
		v.setGem(ilk, gemDst, gem)
		setBalance(v.journal, v.sin, sinDst, sin)
		nativecommon.Assign(v.journal, &v.vice, vice)
		v.journal.Emit(events.PositionGrabbed{
			Ilk: ilk, Urn: u, GemDst: gemDst, SinDst: sinDst,
			Dink: new(big.Int).Set(dink), Dart: new(big.Int).Set(dart),
			DebtRate: fixed.Value(rec.Rate),
		})
		return nil
	})
}

// Safe reports whether the position of owner satisfies ink*spot >= art*rate.
func (v *Vat) Safe(ilk string, owner common.Address) (bool, error) {
	rec, ok := v.ilks[ilk]
	if !ok {
		return false, cdperrors.ErrIlkNotInitialized
	}
	urn := v.urns[ilk][owner].Clone()
	tab, err := fixed.Mul(urn.Art, rec.Rate)
	if err != nil {
		return false, err
	}
	limit, err := fixed.Mul(urn.Ink, rec.Spot)
	if err != nil {
		return false, err
	}
	return !tab.Gt(limit), nil
}

// OwedDebt returns art*rate of the position [rad].
func (v *Vat) OwedDebt(ilk string, owner common.Address) (*uint256.Int, error) {
	rec, ok := v.ilks[ilk]
	if !ok {
		return nil, cdperrors.ErrIlkNotInitialized
	}
	return v.urns[ilk][owner].Clone().Debt(rec.Rate)
}
