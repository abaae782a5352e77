package transferengine

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	ErrWalletNotFound       = errors.New("smart wallet not found")
	ErrCurrencyNotSupported = errors.New("currency is not supported")
	ErrAmountPrecision      = errors.New("amount has more precision than the currency supports")
	ErrAmountNotPositive    = errors.New("amount must be positive")
	ErrSponsorshipFailed    = errors.New("sponsorship failed")
	ErrStorageWrite         = errors.New("cannot write to storage")
)

// goSafe runs fn in a goroutine that reports panics to Sentry before
// re-panicking, so background work never dies silently.
func goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sentry.CurrentHub().Recover(r)
				panic(r)
			}
		}()
		fn()
	}()
}

// sentryFlushSafely flushes pending events on shutdown; a no-op when Sentry
// was never initialized.
func sentryFlushSafely(timeout time.Duration) {
	_ = sentry.Flush(timeout)
}
