package fixed

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
)

func TestParseAndFormat(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1", WadDecimals, "1000000000000000000"},
		{"0.55", WadDecimals, "550000000000000000"},
		{"1.375", RayDecimals, "1375000000000000000000000000"},
		{".5", 2, "50"},
		{"0", RadDecimals, "0"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.Dec() != tc.want {
			t.Fatalf("parse %q = %s, want %s", tc.in, got.Dec(), tc.want)
		}
	}
	if Format(MustParse("1.375", RayDecimals), RayDecimals) != "1.375" {
		t.Fatalf("unexpected format")
	}
	if Format(MustParse("0.000001", WadDecimals), WadDecimals) != "0.000001" {
		t.Fatalf("unexpected small format: %s", Format(MustParse("0.000001", WadDecimals), WadDecimals))
	}
	if Format(Rad(), RadDecimals) != "1" {
		t.Fatalf("unexpected rad format")
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.", "-1", "0.1234567890123456789"} {
		if _, err := ParseWad(in); !errors.Is(err, cdperrors.ErrInvalidParam) {
			t.Fatalf("expected invalid param for %q, got %v", in, err)
		}
	}
}

func TestCheckedArithmetic(t *testing.T) {
	limit := new(uint256.Int).SetAllOne()
	if _, err := Add(limit, uint256.NewInt(1)); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Sub(uint256.NewInt(1), uint256.NewInt(2)); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := Mul(limit, uint256.NewInt(2)); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Rdiv(Ray(), Zero()); !errors.Is(err, cdperrors.ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulDivRoundsDown(t *testing.T) {
	// 0.55 wad scaled to ray, over par 1, over mat 1.375 gives exactly 0.4.
	val, _ := WadToRay(MustParse("0.55", WadDecimals))
	spot, err := Rdiv(val, MustParse("1.375", RayDecimals))
	if err != nil {
		t.Fatalf("rdiv: %v", err)
	}
	if !spot.Eq(MustParse("0.4", RayDecimals)) {
		t.Fatalf("unexpected spot %s", Format(spot, RayDecimals))
	}
	third, _ := Rdiv(Ray(), uint256.NewInt(3))
	if third.Dec() != "333333333333333333333333333333333333333333333333333333" {
		t.Fatalf("unexpected rdiv: %s", third.Dec())
	}
	got, _ := Wmul(MustParse("50", WadDecimals), MustParse("1.1", WadDecimals))
	if !got.Eq(MustParse("55", WadDecimals)) {
		t.Fatalf("unexpected wmul: %s", got.Dec())
	}
}

func TestRpow(t *testing.T) {
	one := Ray()
	got, err := Rpow(one, 1_000_000, Ray())
	if err != nil || !got.Eq(one) {
		t.Fatalf("1^n must be 1, got %v err %v", got, err)
	}
	got, _ = Rpow(Zero(), 0, Ray())
	if !got.Eq(one) {
		t.Fatalf("0^0 must be base")
	}
	got, _ = Rpow(Zero(), 5, Ray())
	if !got.IsZero() {
		t.Fatalf("0^n must be zero")
	}
	two := MustParse("2", RayDecimals)
	got, _ = Rpow(two, 10, Ray())
	if !got.Eq(MustParse("1024", RayDecimals)) {
		t.Fatalf("2^10 = %s", Format(got, RayDecimals))
	}
	// 5% per second for two seconds: 1.1025 exactly.
	got, _ = Rpow(MustParse("1.05", RayDecimals), 2, Ray())
	if !got.Eq(MustParse("1.1025", RayDecimals)) {
		t.Fatalf("1.05^2 = %s", Format(got, RayDecimals))
	}
	if _, err := Rpow(MustParse("1000000", RayDecimals), 100, Ray()); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestSignedDeltas(t *testing.T) {
	got, err := AddDelta(uint256.NewInt(10), big.NewInt(-4))
	if err != nil || got.Uint64() != 6 {
		t.Fatalf("unexpected add delta: %v %v", got, err)
	}
	if _, err := AddDelta(uint256.NewInt(3), big.NewInt(-4)); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	prod, err := MulDelta(uint256.NewInt(7), big.NewInt(-3))
	if err != nil || prod.Int64() != -21 {
		t.Fatalf("unexpected mul delta: %v %v", prod, err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if err := CheckDelta(huge); !errors.Is(err, cdperrors.ErrOverflow) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := CheckDelta(new(big.Int).Neg(huge)); err != nil {
		t.Fatalf("min int256 must be accepted: %v", err)
	}
	if SignedDiff(uint256.NewInt(2), uint256.NewInt(5)).Int64() != -3 {
		t.Fatalf("unexpected signed diff")
	}
}
