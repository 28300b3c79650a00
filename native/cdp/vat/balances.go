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

// Slip credits (or debits, when negative) free collateral of usr. Join
// adapters call it when collateral enters or leaves the system.
func (v *Vat) Slip(caller common.Address, ilk string, usr common.Address, wad *big.Int) error {
	return v.atomic("slip", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		if _, ok := v.ilks[ilk]; !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		wad := orZero(wad)
		bal, err := shift(v.gem[ilk][usr], wad, cdperrors.ErrInsufficientBalance)
		if err != nil {
			return err
		}
		v.setGem(ilk, usr, bal)
		v.journal.Emit(events.CollateralSlipped{Ilk: ilk, Usr: usr, Wad: new(big.Int).Set(wad)})
		return nil
	})
}

// Flux moves free collateral from src to dst.
func (v *Vat) Flux(caller common.Address, ilk string, src, dst common.Address, wad *uint256.Int) error {
	return v.atomic("flux", func() error {
		if !v.wish(src, caller) {
			return cdperrors.ErrNotAuthorized
		}
		from, err := fixed.Sub(v.gem[ilk][src], wad)
		if err != nil {
			return cdperrors.ErrInsufficientBalance
		}
		v.setGem(ilk, src, from)
		to, err := fixed.Add(v.gem[ilk][dst], wad)
		if err != nil {
			return err
		}
		v.setGem(ilk, dst, to)
		v.journal.Emit(events.CollateralMoved{Ilk: ilk, Src: src, Dst: dst, Wad: fixed.Value(wad)})
		return nil
	})
}

// Move transfers internal stable balance from src to dst.
func (v *Vat) Move(caller, src, dst common.Address, rad *uint256.Int) error {
	return v.atomic("move", func() error {
		if !v.wish(src, caller) {
			return cdperrors.ErrNotAuthorized
		}
		from, err := fixed.Sub(v.stable[src], rad)
		if err != nil {
			return cdperrors.ErrInsufficientBalance
		}
		setBalance(v.journal, v.stable, src, from)
		to, err := fixed.Add(v.stable[dst], rad)
		if err != nil {
			return err
		}
		setBalance(v.journal, v.stable, dst, to)
		v.journal.Emit(events.StableMoved{Src: src, Dst: dst, Rad: fixed.Value(rad)})
		return nil
	})
}

// Heal cancels rad of the caller's sin against the same amount of its stable
// balance, shrinking debt and vice together.
func (v *Vat) Heal(caller common.Address, rad *uint256.Int) error {
	return v.atomic("heal", func() error {
		sin, err := fixed.Sub(v.sin[caller], rad)
		if err != nil {
			return cdperrors.ErrInsufficientDebt
		}
		bal, err := fixed.Sub(v.stable[caller], rad)
		if err != nil {
			return cdperrors.ErrInsufficientSurplus
		}
		vice, err := fixed.Sub(v.vice, rad)
		if err != nil {
			return err
		}
		debt, err := fixed.Sub(v.debt, rad)
		if err != nil {
			return err
		}
		setBalance(v.journal, v.sin, caller, sin)
		setBalance(v.journal, v.stable, caller, bal)
		nativecommon.Assign(v.journal, &v.vice, vice)
		nativecommon.Assign(v.journal, &v.debt, debt)
		v.journal.Emit(events.DebtHealed{Usr: caller, Rad: fixed.Value(rad)})
		return nil
	})
}

// Suck mints rad of unbacked stable to stableDst, booking matching sin on
// sinDst. Used for auction incentives and by the settlement module.
func (v *Vat) Suck(caller, sinDst, stableDst common.Address, rad *uint256.Int) error {
	return v.atomic("suck", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		sin, err := fixed.Add(v.sin[sinDst], rad)
		if err != nil {
			return err
		}
		bal, err := fixed.Add(v.stable[stableDst], rad)
		if err != nil {
			return err
		}
		vice, err := fixed.Add(v.vice, rad)
		if err != nil {
			return err
		}
		debt, err := fixed.Add(v.debt, rad)
		if err != nil {
			return err
		}
		setBalance(v.journal, v.sin, sinDst, sin)
		setBalance(v.journal, v.stable, stableDst, bal)
		nativecommon.Assign(v.journal, &v.vice, vice)
		nativecommon.Assign(v.journal, &v.debt, debt)
		v.journal.Emit(events.UnbackedMinted{SinHolder: sinDst, StableHolder: stableDst, Rad: fixed.Value(rad)})
		return nil
	})
}

// Fold applies a rate change to an ilk and credits the resulting fee,
// Art * delta, to usr as stable.
func (v *Vat) Fold(caller common.Address, ilk string, usr common.Address, delta *big.Int) error {
	return v.atomic("fold", func() error {
		if err := v.wards.Require(caller); err != nil {
			return err
		}
		if !v.live {
			return cdperrors.ErrNotLive
		}
		rec, ok := v.ilks[ilk]
		if !ok {
			return cdperrors.ErrIlkNotInitialized
		}
		rec = rec.Clone()
		delta := orZero(delta)
		rate, err := fixed.AddDelta(rec.Rate, delta)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		rad, err := fixed.MulDelta(rec.Art, delta)
		if err != nil {
			return err
		}
		bal, err := shift(v.stable[usr], rad, cdperrors.ErrInsufficientBalance)
		if err != nil {
			return err
		}
		debt, err := fixed.AddDelta(v.debt, rad)
		if err != nil {
			return err
		}
		rec.Rate = rate
		nativecommon.AssignKey(v.journal, v.ilks, ilk, rec)
		setBalance(v.journal, v.stable, usr, bal)
		nativecommon.Assign(v.journal, &v.debt, debt)
		v.journal.Emit(events.RateAccrued{Ilk: ilk, Usr: usr, Delta: new(big.Int).Set(delta), Rate: fixed.Value(rate)})
		return nil
	})
}
