package errors

import stderrors "errors"

// Shared failure vocabulary of the CDP engines. Components wrap these with
// their own prefix so callers can match with errors.Is.
var (
	ErrNotAuthorized         = stderrors.New("cdp: not authorized")
	ErrNotLive               = stderrors.New("cdp: not live")
	ErrOverflow              = stderrors.New("cdp: arithmetic overflow")
	ErrDivisionByZero        = stderrors.New("cdp: division by zero")
	ErrIlkNotInitialized     = stderrors.New("cdp: ilk not initialized")
	ErrIlkAlreadyInitialized = stderrors.New("cdp: ilk already initialized")
	ErrUnsafe                = stderrors.New("cdp: position unsafe")
	ErrNotUnsafe             = stderrors.New("cdp: position not unsafe")
	ErrCeilingExceeded       = stderrors.New("cdp: debt ceiling exceeded")
	ErrBelowDust             = stderrors.New("cdp: debt below dust")
	ErrInsufficientBalance   = stderrors.New("cdp: insufficient balance")
	ErrUnrecognizedParam     = stderrors.New("cdp: unrecognized param")
	ErrInvalidParam          = stderrors.New("cdp: invalid param")
	ErrUnavailable           = stderrors.New("cdp: price unavailable")
	ErrStale                 = stderrors.New("cdp: stale")
	ErrTooExpensive          = stderrors.New("cdp: too expensive")
	ErrNotNeeded             = stderrors.New("cdp: reset not needed")
	ErrNotRunning            = stderrors.New("cdp: auction not running")
	ErrNoPartialPurchase     = stderrors.New("cdp: no partial purchase")
	ErrLiquidationLimit      = stderrors.New("cdp: liquidation limit reached")
	ErrStopped               = stderrors.New("cdp: stopped")
	ErrReentrant             = stderrors.New("cdp: reentrant call")
	ErrInsufficientSurplus   = stderrors.New("cdp: insufficient surplus")
	ErrInsufficientDebt      = stderrors.New("cdp: insufficient debt")
	ErrDebtOutstanding       = stderrors.New("cdp: debt outstanding")
)

var transient = []error{
	ErrUnavailable,
	ErrStale,
	ErrTooExpensive,
	ErrNotNeeded,
	ErrLiquidationLimit,
}

// IsTransient reports whether err belongs to the class of failures a caller
// may retry once prices, time or liquidation room move on.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range transient {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

var codes = []struct {
	err  error
	code string
}{
	{ErrNotAuthorized, "not_authorized"},
	{ErrNotLive, "not_live"},
	{ErrOverflow, "overflow"},
	{ErrDivisionByZero, "division_by_zero"},
	{ErrIlkNotInitialized, "ilk_not_initialized"},
	{ErrIlkAlreadyInitialized, "ilk_already_initialized"},
	{ErrUnsafe, "unsafe"},
	{ErrNotUnsafe, "not_unsafe"},
	{ErrCeilingExceeded, "ceiling_exceeded"},
	{ErrBelowDust, "below_dust"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrUnrecognizedParam, "unrecognized_param"},
	{ErrInvalidParam, "invalid_param"},
	{ErrUnavailable, "unavailable"},
	{ErrStale, "stale"},
	{ErrTooExpensive, "too_expensive"},
	{ErrNotNeeded, "not_needed"},
	{ErrNotRunning, "not_running"},
	{ErrNoPartialPurchase, "no_partial_purchase"},
	{ErrLiquidationLimit, "liquidation_limit"},
	{ErrStopped, "stopped"},
	{ErrReentrant, "reentrant"},
	{ErrInsufficientSurplus, "insufficient_surplus"},
	{ErrInsufficientDebt, "insufficient_debt"},
	{ErrDebtOutstanding, "debt_outstanding"},
}

// Code returns a stable snake_case name for the sentinel wrapped by err,
// "ok" for nil and "internal" for anything else.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, entry := range codes {
		if stderrors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}
