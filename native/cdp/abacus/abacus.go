// Package abacus provides the price-decay curves of Dutch auctions. Every
// curve starts at top and never increases with elapsed time.
package abacus

import (
	"fmt"

	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/fixed"
)

// Calculator returns the auction price [ray] dur seconds after a sale
// started at top [ray].
type Calculator interface {
	Price(top *uint256.Int, dur uint64) (*uint256.Int, error)
	// File sets a curve parameter; unknown keys fail with ErrUnrecognizedParam.
	File(what string, data *uint256.Int) error
	Kind() string
}

const (
	KindLinear    = "linear"
	KindStairstep = "stairstep"
	KindExponent  = "exponential"
)

// New returns an empty calculator of the given kind.
func New(kind string) (Calculator, error) {
	switch kind {
	case KindLinear, "":
		return &LinearDecrease{}, nil
	case KindStairstep:
		return &StairstepExponentialDecrease{}, nil
	case KindExponent:
		return &ExponentialDecrease{}, nil
	default:
		return nil, fmt.Errorf("abacus: kind %q: %w", kind, cdperrors.ErrUnrecognizedParam)
	}
}

// LinearDecrease falls from top to zero over tau seconds.
type LinearDecrease struct {
	Tau uint64
}

func (c *LinearDecrease) Kind() string { return KindLinear }

func (c *LinearDecrease) File(what string, data *uint256.Int) error {
	if what != "tau" {
		return fmt.Errorf("abacus: %q: %w", what, cdperrors.ErrUnrecognizedParam)
	}
	if data == nil || !data.IsUint64() {
		return fmt.Errorf("abacus: tau: %w", cdperrors.ErrInvalidParam)
	}
	c.Tau = data.Uint64()
	return nil
}

// Price returns top * (tau - dur) / tau, or zero once dur >= tau.
func (c *LinearDecrease) Price(top *uint256.Int, dur uint64) (*uint256.Int, error) {
	if dur >= c.Tau {
		return new(uint256.Int), nil
	}
	remaining, err := fixed.Rdiv(uint256.NewInt(c.Tau-dur), uint256.NewInt(c.Tau))
	if err != nil {
		return nil, err
	}
	return fixed.Rmul(top, remaining)
}

// StairstepExponentialDecrease multiplies the price by cut once every step
// seconds.
type StairstepExponentialDecrease struct {
	Step uint64
	Cut  *uint256.Int // [ray], at most one
}

func (c *StairstepExponentialDecrease) Kind() string { return KindStairstep }

func (c *StairstepExponentialDecrease) File(what string, data *uint256.Int) error {
	switch what {
	case "cut":
		if data == nil || data.Gt(fixed.Ray()) {
			return fmt.Errorf("abacus: cut: %w", cdperrors.ErrInvalidParam)
		}
		c.Cut = fixed.Value(data)
	case "step":
		if data == nil || !data.IsUint64() {
			return fmt.Errorf("abacus: step: %w", cdperrors.ErrInvalidParam)
		}
		c.Step = data.Uint64()
	default:
		return fmt.Errorf("abacus: %q: %w", what, cdperrors.ErrUnrecognizedParam)
	}
	return nil
}

// Price returns top * cut^(dur/step). A zero step never decays.
func (c *StairstepExponentialDecrease) Price(top *uint256.Int, dur uint64) (*uint256.Int, error) {
	if c.Step == 0 {
		return fixed.Value(top), nil
	}
	factor, err := fixed.Rpow(c.Cut, dur/c.Step, fixed.Ray())
	if err != nil {
		return nil, err
	}
	return fixed.Rmul(top, factor)
}

// ExponentialDecrease multiplies the price by cut every second.
type ExponentialDecrease struct {
	Cut *uint256.Int // [ray], at most one
}

func (c *ExponentialDecrease) Kind() string { return KindExponent }

func (c *ExponentialDecrease) File(what string, data *uint256.Int) error {
	if what != "cut" {
		return fmt.Errorf("abacus: %q: %w", what, cdperrors.ErrUnrecognizedParam)
	}
	if data == nil || data.Gt(fixed.Ray()) {
		return fmt.Errorf("abacus: cut: %w", cdperrors.ErrInvalidParam)
	}
	c.Cut = fixed.Value(data)
	return nil
}

// Price returns top * cut^dur.
func (c *ExponentialDecrease) Price(top *uint256.Int, dur uint64) (*uint256.Int, error) {
	factor, err := fixed.Rpow(c.Cut, dur, fixed.Ray())
	if err != nil {
		return nil, err
	}
	return fixed.Rmul(top, factor)
}

// Params exposes the numeric parameters of a calculator for persistence.
func Params(c Calculator) map[string]*uint256.Int {
	switch calc := c.(type) {
	case *LinearDecrease:
		return map[string]*uint256.Int{"tau": uint256.NewInt(calc.Tau)}
	case *StairstepExponentialDecrease:
		return map[string]*uint256.Int{"cut": fixed.Value(calc.Cut), "step": uint256.NewInt(calc.Step)}
	case *ExponentialDecrease:
		return map[string]*uint256.Int{"cut": fixed.Value(calc.Cut)}
	default:
		return nil
	}
}
