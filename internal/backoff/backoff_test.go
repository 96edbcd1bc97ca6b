package backoff

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	b := New()

	want := []time.Duration{
		0,
		1600 * time.Millisecond,
		2560 * time.Millisecond,
		4096 * time.Millisecond,
	}
	for i, expected := range want {
		got := b.Next()
		require.InDelta(t, float64(expected), float64(got), float64(time.Millisecond), "attempt %d", i)
	}
}

func TestScheduleCap(t *testing.T) {
	b := New()
	var last time.Duration
	for i := 0; i < 50; i++ {
		last = b.Next()
		require.LessOrEqual(t, last, DefaultMax)
	}
	require.Equal(t, DefaultMax, last)
}

func TestReset(t *testing.T) {
	b := New()
	b.Next()
	b.Next()
	require.Equal(t, 2, b.Attempts())

	b.Reset()
	require.Equal(t, 0, b.Attempts())
	require.Equal(t, time.Duration(0), b.Next())
}

func TestScheduleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delays are non-decreasing and capped", prop.ForAll(
		func(attempts int) bool {
			b := New()
			var prev time.Duration
			for i := 0; i < attempts; i++ {
				d := b.Next()
				if d < prev || d > DefaultMax {
					return false
				}
				prev = d
			}
			return true
		},
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
