package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Wait(t *testing.T) {
	t.Run("retries", func(t *testing.T) {
		b := New(3, time.Millisecond, time.Millisecond*10)
		assert.True(t, b.Wait(context.Background()))
		assert.True(t, b.Wait(context.Background()))
		assert.True(t, b.Wait(context.Background()))
		assert.False(t, b.Wait(context.Background()))
		assert.Equal(t, 3, b.Attempts())
	})

	t.Run("reset", func(t *testing.T) {
		b := New(1, time.Millisecond, time.Millisecond*10)
		assert.True(t, b.Wait(context.Background()))
		assert.False(t, b.Wait(context.Background()))

		b.Reset()
		assert.Equal(t, 0, b.Attempts())
		assert.True(t, b.Wait(context.Background()))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		b := New(0, time.Minute, time.Minute)
		assert.False(t, b.Wait(ctx))
	})
}

func TestBackoff_NextWait(t *testing.T) {
	b := New(0, time.Second, time.Second*5)

	var waits []time.Duration
	for i := 0; i != 5; i++ {
		wait := b.nextWait()
		b.lastBackoff = wait
		waits = append(waits, wait)
	}

	// Doubles each attempt with upto 10% jitter, capped by the max backoff.
	assert.GreaterOrEqual(t, waits[0], time.Second)
	assert.Less(t, waits[0], time.Millisecond*1100)
	assert.GreaterOrEqual(t, waits[1], time.Second*2)
	for _, wait := range waits {
		assert.LessOrEqual(t, wait, time.Millisecond*5500)
	}
	assert.GreaterOrEqual(t, waits[4], time.Second*5)
}
