package lock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/lock"
)

func TestRegistryRefCounting(t *testing.T) {
	r := lock.NewRegistry()
	require.False(t, r.Locked("/a"))

	r.Acquire("/a")
	require.True(t, r.Locked("/a"))

	r.Acquire("/a")
	r.Release("/a")
	require.True(t, r.Locked("/a"), "still held by the second Acquire")

	r.Release("/a")
	require.False(t, r.Locked("/a"))
}

func TestRegistryReleaseWithoutAcquireIsNoop(t *testing.T) {
	r := lock.NewRegistry()
	require.NotPanics(t, func() { r.Release("/never-acquired") })
	require.False(t, r.Locked("/never-acquired"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := lock.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Acquire("/shared")
			r.Release("/shared")
		}()
	}
	wg.Wait()
	require.False(t, r.Locked("/shared"))
}
