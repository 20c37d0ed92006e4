package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameClock_StartsAtEpoch(t *testing.T) {
	clock := NewFrameClock(0)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second/60), clock.Now())
	assert.Equal(t, int64(2), clock.Ticks())
}

func TestFrameClock_Reset(t *testing.T) {
	clock := NewFrameClock(time.Millisecond)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestFrameClock_ThreadSafe(t *testing.T) {
	clock := NewFrameClock(time.Millisecond)
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines), clock.Ticks())
}

func TestFixedSessionGenerator(t *testing.T) {
	assert.Equal(t, "abc", NewFixedSessionGenerator("abc").Generate())
	assert.Equal(t, "test-session-default", NewFixedSessionGenerator("").Generate())
}
