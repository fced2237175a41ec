package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestRealIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
