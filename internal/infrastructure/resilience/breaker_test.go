package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestClosedPassesThrough(t *testing.T) {
	b := New("test", Settings{})

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errBoom })
	}

	require.Equal(t, StateOpen, b.State())
	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New("test", Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_ = b.Do(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Do(func() error { return nil }), "half-open probe should pass")
	assert.Equal(t, StateClosed, b.State())
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []State
	b := New("test", Settings{
		ReadyToTrip:   func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	_ = b.Do(func() error { return errBoom })

	require.Len(t, transitions, 1)
	assert.Equal(t, StateOpen, transitions[0])
}
