package relayer

import (
	"github.com/getsentry/sentry-go"
)

// goSafe runs fn in a goroutine that reports panics to Sentry before
// re-panicking, so crashes in background tasks are never silently lost.
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
