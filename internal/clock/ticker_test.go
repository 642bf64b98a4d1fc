package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerMonotonic(t *testing.T) {
	tk := NewTicker()
	a := tk.NowNanos()
	time.Sleep(time.Millisecond)
	b := tk.NowNanos()
	assert.Greater(t, b, a)
}

func TestTickerStartsNearZero(t *testing.T) {
	tk := NewTicker()
	assert.Less(t, tk.NowNanos(), int64(time.Second))
}

func TestSharedReturnsSingleton(t *testing.T) {
	a := Shared()
	b := Shared()
	assert.Same(t, a, b)
}
