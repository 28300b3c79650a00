// Package fixed implements the wad/ray/rad fixed-point arithmetic shared by the
// CDP engines. Every operation is checked: results that would leave the
// unsigned 256-bit range fail with ErrOverflow instead of wrapping.
package fixed

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
)

// Decimal precision of the three scales.
const (
	WadDecimals = 18
	RayDecimals = 27
	RadDecimals = 45
)

var (
	wad = uint256.NewInt(1_000_000_000_000_000_000)
	ray = uint256.MustFromDecimal("1000000000000000000000000000")
	rad = uint256.MustFromDecimal("1000000000000000000000000000000000000000000000")
	bln = uint256.NewInt(1_000_000_000)

	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// Wad returns 1e18.
func Wad() *uint256.Int { return new(uint256.Int).Set(wad) }

// Ray returns 1e27.
func Ray() *uint256.Int { return new(uint256.Int).Set(ray) }

// Rad returns 1e45.
func Rad() *uint256.Int { return new(uint256.Int).Set(rad) }

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// Value normalises nil to zero and returns a copy.
func Value(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

func overflow(op string) error {
	return fmt.Errorf("fixed: %s: %w", op, cdperrors.ErrOverflow)
}

// Add returns x + y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).AddOverflow(Value(x), Value(y))
	if over {
		return nil, overflow("add")
	}
	return z, nil
}

// Sub returns x - y and fails when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, under := new(uint256.Int).SubOverflow(Value(x), Value(y))
	if under {
		return nil, overflow("sub")
	}
	return z, nil
}

// Mul returns x * y.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, over := new(uint256.Int).MulOverflow(Value(x), Value(y))
	if over {
		return nil, overflow("mul")
	}
	return z, nil
}

// Div returns x / y rounded down.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y == nil || y.IsZero() {
		return nil, fmt.Errorf("fixed: div: %w", cdperrors.ErrDivisionByZero)
	}
	return new(uint256.Int).Div(Value(x), y), nil
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if Value(x).Cmp(Value(y)) <= 0 {
		return Value(x)
	}
	return Value(y)
}

// Diff returns x - y, or zero when y >= x.
func Diff(x, y *uint256.Int) *uint256.Int {
	if Value(x).Cmp(Value(y)) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, Value(y))
}

func mulDiv(x, y, unit *uint256.Int, op string) (*uint256.Int, error) {
	z, err := Mul(x, y)
	if err != nil {
		return nil, overflow(op)
	}
	return z.Div(z, unit), nil
}

// Wmul returns x * y / WAD rounded down.
func Wmul(x, y *uint256.Int) (*uint256.Int, error) { return mulDiv(x, y, wad, "wmul") }

// Rmul returns x * y / RAY rounded down.
func Rmul(x, y *uint256.Int) (*uint256.Int, error) { return mulDiv(x, y, ray, "rmul") }

// Wdiv returns x * WAD / y rounded down.
func Wdiv(x, y *uint256.Int) (*uint256.Int, error) {
	if y == nil || y.IsZero() {
		return nil, fmt.Errorf("fixed: wdiv: %w", cdperrors.ErrDivisionByZero)
	}
	z, err := Mul(x, wad)
	if err != nil {
		return nil, overflow("wdiv")
	}
	return z.Div(z, y), nil
}

// Rdiv returns x * RAY / y rounded down.
func Rdiv(x, y *uint256.Int) (*uint256.Int, error) {
	if y == nil || y.IsZero() {
		return nil, fmt.Errorf("fixed: rdiv: %w", cdperrors.ErrDivisionByZero)
	}
	z, err := Mul(x, ray)
	if err != nil {
		return nil, overflow("rdiv")
	}
	return z.Div(z, y), nil
}

// WadToRay scales a wad value by 1e9.
func WadToRay(x *uint256.Int) (*uint256.Int, error) {
	z, err := Mul(x, bln)
	if err != nil {
		return nil, overflow("wad to ray")
	}
	return z, nil
}

// Rpow computes x^n in fixed point with the given base, rounding half up at
// every squaring and multiplication step.
func Rpow(x *uint256.Int, n uint64, base *uint256.Int) (*uint256.Int, error) {
	x = Value(x)
	if base == nil || base.IsZero() {
		return nil, fmt.Errorf("fixed: rpow: %w", cdperrors.ErrDivisionByZero)
	}
	if x.IsZero() {
		if n == 0 {
			return Value(base), nil
		}
		return new(uint256.Int), nil
	}
	z := Value(base)
	if n%2 == 1 {
		z = Value(x)
	}
	half := new(uint256.Int).Rsh(base, 1)
	for n /= 2; n > 0; n /= 2 {
		xx, over := new(uint256.Int).MulOverflow(x, x)
		if over {
			return nil, overflow("rpow")
		}
		xxRound, over := new(uint256.Int).AddOverflow(xx, half)
		if over {
			return nil, overflow("rpow")
		}
		x = xxRound.Div(xxRound, base)
		if n%2 == 1 {
			zx, over := new(uint256.Int).MulOverflow(z, x)
			if over {
				return nil, overflow("rpow")
			}
			zxRound, over := new(uint256.Int).AddOverflow(zx, half)
			if over {
				return nil, overflow("rpow")
			}
			z = zxRound.Div(zxRound, base)
		}
	}
	return z, nil
}

// CheckDelta verifies that d fits the signed 256-bit range.
func CheckDelta(d *big.Int) error {
	if d == nil {
		return nil
	}
	if d.Cmp(maxInt256) > 0 || d.Cmp(minInt256) < 0 {
		return overflow("delta range")
	}
	return nil
}

// AddDelta returns x + d for a signed delta. A negative result fails.
func AddDelta(x *uint256.Int, d *big.Int) (*uint256.Int, error) {
	if d == nil || d.Sign() == 0 {
		return Value(x), nil
	}
	if err := CheckDelta(d); err != nil {
		return nil, err
	}
	abs, over := uint256.FromBig(new(big.Int).Abs(d))
	if over {
		return nil, overflow("add delta")
	}
	if d.Sign() > 0 {
		return Add(x, abs)
	}
	return Sub(x, abs)
}

// MulDelta returns x * d as a signed value bounded to the int256 range.
func MulDelta(x *uint256.Int, d *big.Int) (*big.Int, error) {
	if d == nil || d.Sign() == 0 || x == nil || x.IsZero() {
		return new(big.Int), nil
	}
	if err := CheckDelta(d); err != nil {
		return nil, err
	}
	product := new(big.Int).Mul(x.ToBig(), d)
	if err := CheckDelta(product); err != nil {
		return nil, overflow("mul delta")
	}
	return product, nil
}

// Neg returns -x as a signed delta.
func Neg(x *uint256.Int) *big.Int {
	return new(big.Int).Neg(Value(x).ToBig())
}

// Signed returns x as a signed delta.
func Signed(x *uint256.Int) *big.Int {
	return Value(x).ToBig()
}

// SignedDiff returns x - y as a signed delta.
func SignedDiff(x, y *uint256.Int) *big.Int {
	return new(big.Int).Sub(Value(x).ToBig(), Value(y).ToBig())
}
