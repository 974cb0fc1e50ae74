package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Sequence(t *testing.T) {
	b := NewBackoff(2*time.Second, 30*time.Second)

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(2*time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Next()

	b.Reset()
	assert.Equal(t, 2*time.Second, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, DefaultInitialBackoff, b.Next())
	assert.Equal(t, DefaultInitialBackoff, b.Next(), "max below initial is raised to initial")
}
