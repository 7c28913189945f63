package verify_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

func TestReportLocks_SingleFlight(t *testing.T) {
	locks := verify.NewReportLocks()

	release, ok := locks.TryAcquire("report-1")
	require.True(t, ok)

	_, ok = locks.TryAcquire("report-1")
	assert.False(t, ok, "second acquire for the same report must fail")

	// A different report is unaffected.
	otherRelease, ok := locks.TryAcquire("report-2")
	require.True(t, ok)
	otherRelease()

	release()
	release2, ok := locks.TryAcquire("report-1")
	assert.True(t, ok, "released lock must be reacquirable")
	release2()
}

func TestReportLocks_ConcurrentAcquire(t *testing.T) {
	locks := verify.NewReportLocks()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := locks.TryAcquire("report-1"); ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired, "exactly one goroutine wins the lock")
}
