package timedbuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	At    time.Time
	Value int
}

func sampleKey(s sample) time.Time { return s.At }

// go test -v --run TestBufferEvictsOldest
func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		require.True(t, b.Add(i))
	}

	assert.Equal(t, 3, b.Count())
	assert.Equal(t, int64(5), b.TotalCount())
	assert.Equal(t, []int{3, 4, 5}, b.All())

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

// go test -v --run TestBufferNeverExceedsCapacity
func TestBufferNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 7, 64} {
		b := New[int](capacity)
		for k := 1; k <= 200; k++ {
			b.Add(k)
			require.LessOrEqual(t, b.Count(), capacity)
			require.Equal(t, int64(k), b.TotalCount())
		}
	}
}

// go test -v --run TestBufferLastN
func TestBufferLastN(t *testing.T) {
	b := New[int](4)
	assert.Empty(t, b.LastN(2))

	b.Add(1)
	b.Add(2)
	assert.Equal(t, []int{1, 2}, b.LastN(10))
	assert.Equal(t, []int{2}, b.LastN(1))
	assert.Empty(t, b.LastN(0))
	assert.Empty(t, b.LastN(-1))
}

// go test -v --run TestBufferDedupe
func TestBufferDedupe(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	b := New(10, WithKey(sampleKey), WithDedupe[sample]())

	require.True(t, b.Add(sample{At: base, Value: 1}))
	assert.False(t, b.Add(sample{At: base, Value: 2}))
	require.True(t, b.Add(sample{At: base.Add(time.Second), Value: 3}))

	assert.Equal(t, 2, b.Count())
	assert.Equal(t, int64(2), b.TotalCount())
}

// go test -v --run TestBufferForPeriod
func TestBufferForPeriod(t *testing.T) {
	now := time.UnixMilli(1_700_000_600_000)
	b := New(10, WithKey(sampleKey), WithClock[sample](func() time.Time { return now }))

	for i := 10; i >= 1; i-- {
		b.Add(sample{At: now.Add(-time.Duration(i) * time.Minute), Value: i})
	}

	got := b.ForPeriod(3 * time.Minute)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Value)
	assert.Equal(t, 1, got[2].Value)

	assert.Len(t, b.ForPeriod(time.Hour), 10)
	assert.Empty(t, b.ForPeriod(30*time.Second))
}

// go test -v --run TestBufferReset
func TestBufferReset(t *testing.T) {
	b := New[int](2)
	b.Add(1)
	b.Add(2)
	b.Add(3)
	b.Reset()

	assert.Equal(t, 0, b.Count())
	assert.Equal(t, int64(3), b.TotalCount())
	_, ok := b.Last()
	assert.False(t, ok)

	b.Add(4)
	assert.Equal(t, []int{4}, b.All())
}
