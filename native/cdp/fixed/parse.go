package fixed

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
)

// Parse converts a human decimal such as "1.05" into a fixed-point integer
// with the given number of decimals. Digits beyond the precision are
// rejected rather than rounded.
func Parse(value string, decimals int) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("fixed: parse: empty value: %w", cdperrors.ErrInvalidParam)
	}
	whole, frac, hasFrac := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("fixed: parse %q: %w", value, cdperrors.ErrInvalidParam)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("fixed: parse %q: more than %d decimals: %w", value, decimals, cdperrors.ErrInvalidParam)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return nil, fmt.Errorf("fixed: parse %q: %w", value, cdperrors.ErrInvalidParam)
			}
		}
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("fixed: parse %q: %w", value, cdperrors.ErrOverflow)
	}
	return out, nil
}

// ParseWad parses an 18-decimal quantity.
func ParseWad(value string) (*uint256.Int, error) { return Parse(value, WadDecimals) }

// ParseRay parses a 27-decimal quantity.
func ParseRay(value string) (*uint256.Int, error) { return Parse(value, RayDecimals) }

// ParseRad parses a 45-decimal quantity.
func ParseRad(value string) (*uint256.Int, error) { return Parse(value, RadDecimals) }

// MustParse is Parse for constants known at compile time.
func MustParse(value string, decimals int) *uint256.Int {
	out, err := Parse(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// Format renders x as a decimal string with trailing zeros trimmed.
func Format(x *uint256.Int, decimals int) string {
	digits := Value(x).Dec()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
