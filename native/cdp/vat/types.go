package vat

import (
	"github.com/holiman/uint256"

	"cdpvault/native/cdp/fixed"
)

// Ilk is the ledger record of one collateral type.
type Ilk struct {
	Art  *uint256.Int // total normalised debt [wad]
	Rate *uint256.Int // accumulated rate [ray]
	Spot *uint256.Int // price with safety margin [ray]
	Line *uint256.Int // debt ceiling [rad]
	Dust *uint256.Int // debt floor [rad]
}

// Clone returns a deep copy with nil fields normalised to zero.
func (i Ilk) Clone() Ilk {
	return Ilk{
		Art:  fixed.Value(i.Art),
		Rate: fixed.Value(i.Rate),
		Spot: fixed.Value(i.Spot),
		Line: fixed.Value(i.Line),
		Dust: fixed.Value(i.Dust),
	}
}

// Urn is a single position of one owner in one ilk.
type Urn struct {
	Ink *uint256.Int // locked collateral [wad]
	Art *uint256.Int // normalised debt [wad]
}

// Clone returns a deep copy with nil fields normalised to zero.
func (u Urn) Clone() Urn {
	return Urn{Ink: fixed.Value(u.Ink), Art: fixed.Value(u.Art)}
}

// Empty reports whether the urn holds neither collateral nor debt.
func (u Urn) Empty() bool {
	return fixed.Value(u.Ink).IsZero() && fixed.Value(u.Art).IsZero()
}

// Debt returns art * rate [rad].
func (u Urn) Debt(rate *uint256.Int) (*uint256.Int, error) {
	return fixed.Mul(u.Art, rate)
}
