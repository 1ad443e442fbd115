package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"testing"
	"time"
)

// Timeout dumps all goroutines and panics when cancel is not called within
// d. Useful for tests that could block forever on a channel.
func Timeout(t *testing.T, d time.Duration) (cancel func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)

	go func() {
		<-ctx.Done()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if err := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err != nil {
				fmt.Printf("failed to print goroutines: %v\n", err)
			}

			panic(fmt.Sprintf("%s: timed out after %s", t.Name(), d))
		}
	}()

	return cancel
}
