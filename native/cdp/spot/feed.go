package spot

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	cdperrors "cdpvault/core/errors"
	"cdpvault/native/cdp/fixed"
	nativecommon "cdpvault/native/common"
)

// Feed is an oracle source for one collateral type. Peek returns the
// current price [wad] and whether it may be used.
type Feed interface {
	Peek() (*uint256.Int, bool)
}

// PriceStatus classifies the last observation of a feed.
type PriceStatus string

const (
	PriceStatusOK    PriceStatus = "ok"
	PriceStatusStale PriceStatus = "stale"
	PriceStatusUnset PriceStatus = "unset"
)

// ManualFeed is a Feed whose value is published by an operator or relay.
// Observations older than maxAge seconds are reported as unusable.
type ManualFeed struct {
	mu      sync.RWMutex
	clock   nativecommon.Clock
	maxAge  uint64
	value   *uint256.Int
	updated uint64
}

// NewManualFeed returns an empty feed. A zero maxAge disables the staleness
// check.
func NewManualFeed(clock nativecommon.Clock, maxAge uint64) *ManualFeed {
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	return &ManualFeed{clock: clock, maxAge: maxAge}
}

// Publish records a new price [wad]. Zero is rejected.
func (f *ManualFeed) Publish(value *uint256.Int) error {
	if value == nil || value.IsZero() {
		return fmt.Errorf("spot: publish: %w", cdperrors.ErrInvalidParam)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = fixed.Value(value)
	f.updated = f.clock.Now()
	return nil
}

// Peek implements Feed.
func (f *ManualFeed) Peek() (*uint256.Int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.value == nil {
		return new(uint256.Int), false
	}
	return fixed.Value(f.value), f.statusLocked() == PriceStatusOK
}

// Status classifies the current observation.
func (f *ManualFeed) Status() PriceStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.statusLocked()
}

// Age returns seconds since the last publish.
func (f *ManualFeed) Age() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	now := f.clock.Now()
	if f.value == nil || now < f.updated {
		return 0
	}
	return now - f.updated
}

func (f *ManualFeed) statusLocked() PriceStatus {
	if f.value == nil {
		return PriceStatusUnset
	}
	now := f.clock.Now()
	if f.maxAge > 0 && now > f.updated && now-f.updated > f.maxAge {
		return PriceStatusStale
	}
	return PriceStatusOK
}

// Observation returns the raw last value [wad] and its publish time.
func (f *ManualFeed) Observation() (*uint256.Int, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.value == nil {
		return nil, 0
	}
	return fixed.Value(f.value), f.updated
}

// Load restores a persisted observation without touching its timestamp.
func (f *ManualFeed) Load(value *uint256.Int, updated uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == nil || value.IsZero() {
		f.value, f.updated = nil, 0
		return
	}
	f.value = fixed.Value(value)
	f.updated = updated
}
