package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := newRing[SkipEvent](4)
		assert.Empty(t, r.snapshot())
		assert.Equal(t, 0, r.size())
	})

	t.Run("keeps push order before wrapping", func(t *testing.T) {
		r := newRing[SkipEvent](4)
		r.push(SkipEvent{Cursor: "first"})
		r.push(SkipEvent{Cursor: "second"})

		got := r.snapshot()
		assert.Equal(t, []SkipEvent{{Cursor: "first"}, {Cursor: "second"}}, got)
	})

	t.Run("drops the oldest after wrapping", func(t *testing.T) {
		r := newRing[string](3)
		for _, s := range []string{"1", "2", "3", "4", "5"} {
			r.push(s)
		}
		assert.Equal(t, []string{"3", "4", "5"}, r.snapshot())
		assert.Equal(t, 3, r.size())
	})

	t.Run("default capacity", func(t *testing.T) {
		r := newRing[int](0)
		for i := 0; i < 40; i++ {
			r.push(i)
		}
		assert.Equal(t, defaultRingSize, r.size())
		assert.Equal(t, 39, r.snapshot()[defaultRingSize-1])
	})
}
