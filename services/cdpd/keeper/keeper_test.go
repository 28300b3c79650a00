package keeper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

const genesis = `
Governor = "0x00000000000000000000000000000000000000a1"
Line = "1000000"
Hole = "1000000"

[[ilk]]
Name = "GOLD-A"
Line = "1000000"
Dust = "10"
Mat = "1.5"
Chop = "1.1"
Hole = "1000000"
Buf = "1.2"
Tail = 600
Cusp = "0.5"
Price = "1"

[ilk.calc]
Kind = "linear"
Tau = 1000
`

var (
	gov   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bot   = common.HexToAddress("0x00000000000000000000000000000000000000b3")
)

func wad(s string) *uint256.Int { return fixed.MustParse(s, fixed.WadDecimals) }

func TestTickLiquidatesAndResets(t *testing.T) {
	gen, err := cdp.ParseGenesis(genesis)
	require.NoError(t, err)
	clock := nativecommon.NewManualClock(1_700_000_000)
	sys, err := cdp.Deploy(gen, clock)
	require.NoError(t, err)

	require.NoError(t, sys.Join(gov, "GOLD-A", alice, wad("100")))
	require.NoError(t, sys.AdjustPosition(alice, "GOLD-A", fixed.Signed(wad("100")), fixed.Signed(wad("60"))))

	passes := 0
	k := New(sys, bot, 0, nil, func(Report) { passes++ })
	report := k.Tick(context.Background())
	require.Zero(t, report.Barked)
	require.Zero(t, report.Errors)

	require.NoError(t, sys.PublishPrice(gov, "GOLD-A", wad("0.8")))
	report = k.Tick(context.Background())
	require.Equal(t, 1, report.Barked)
	require.Equal(t, 1, report.Poked)

	auctions, err := sys.Auctions("GOLD-A")
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	tic := auctions[0].Tic

	clock.Advance(601)
	report = k.Tick(context.Background())
	require.Equal(t, 1, report.Redone)
	sale, err := sys.Auction("GOLD-A", auctions[0].ID)
	require.NoError(t, err)
	require.Greater(t, sale.Tic, tic)
	require.Equal(t, 3, passes)
}

type failingEngine struct {
	barks int
}

func (f *failingEngine) Ilks() []string { return []string{"A"} }
func (f *failingEngine) Drip(common.Address, string) (*uint256.Int, error) {
	return nil, fmt.Errorf("jug: drip: %w", cdperrors.ErrOverflow)
}
func (f *failingEngine) Poke(common.Address, string) error {
	return fmt.Errorf("spot: poke: %w", cdperrors.ErrUnavailable)
}
func (f *failingEngine) UnsafeUrns(string) ([]common.Address, error) {
	return []common.Address{alice, bot}, nil
}
func (f *failingEngine) Bark(common.Address, string, common.Address, common.Address) (uint64, error) {
	f.barks++
	return 0, fmt.Errorf("dog: bark: %w", cdperrors.ErrLiquidationLimit)
}
func (f *failingEngine) Auctions(string) ([]cdp.AuctionView, error) {
	return nil, errors.New("boom")
}
func (f *failingEngine) Redo(common.Address, string, uint64, common.Address) error { return nil }

func TestTickClassifiesFailures(t *testing.T) {
	engine := &failingEngine{}
	called := false
	k := New(engine, bot, 0, nil, func(Report) { called = true })
	report := k.Tick(context.Background())
	require.Equal(t, 2, report.Errors)
	require.Equal(t, 1, engine.barks)
	require.False(t, report.Changed())
	require.False(t, called)
}
