package toast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		elapsed, duration time.Duration
		want              float64
	}{
		{0, 5 * time.Second, 1},
		{2500 * time.Millisecond, 5 * time.Second, 0.5},
		{5 * time.Second, 5 * time.Second, 0},
		{7 * time.Second, 5 * time.Second, 0},
		{-time.Second, 5 * time.Second, 1},
		{time.Second, 0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Remaining(tt.elapsed, tt.duration), 1e-9,
			"Remaining(%v, %v)", tt.elapsed, tt.duration)
	}
}

func TestCountdown_NotStarted(t *testing.T) {
	c := NewCountdown(5 * time.Second)
	now := time.Unix(100, 0)

	assert.False(t, c.Started())
	assert.Equal(t, time.Duration(0), c.Elapsed(now))
	assert.Equal(t, 5*time.Second, c.Left(now))
	assert.False(t, c.Done(now))
	assert.False(t, c.Pause(now), "pausing a stopped countdown is a no-op")
}

func TestCountdown_Elapses(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewCountdown(5 * time.Second)
	c.Start(start)

	assert.Equal(t, 2*time.Second, c.Elapsed(start.Add(2*time.Second)))
	assert.Equal(t, 3*time.Second, c.Left(start.Add(2*time.Second)))
	assert.InDelta(t, 0.6, c.Fraction(start.Add(2*time.Second)), 1e-9)
	assert.True(t, c.Done(start.Add(5*time.Second)))
	assert.Equal(t, time.Duration(0), c.Left(start.Add(time.Minute)))
}

func TestCountdown_StartTwiceKeepsOrigin(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewCountdown(5 * time.Second)
	c.Start(start)
	c.Start(start.Add(3 * time.Second))

	assert.Equal(t, 4*time.Second, c.Elapsed(start.Add(4*time.Second)))
}

func TestCountdown_PauseFreezesProgress(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewCountdown(5 * time.Second)
	c.Start(start)

	assert.True(t, c.Pause(start.Add(2*time.Second)))
	assert.False(t, c.Pause(start.Add(3*time.Second)), "second pause is ignored")

	// Elapsed stays at the pause point however long the hover lasts.
	assert.Equal(t, 2*time.Second, c.Elapsed(start.Add(10*time.Second)))
	assert.Equal(t, 8*time.Second, c.PausedTotal(start.Add(10*time.Second)))

	assert.True(t, c.Resume(start.Add(10*time.Second)))
	assert.False(t, c.Paused())
	assert.Equal(t, 3*time.Second, c.Elapsed(start.Add(11*time.Second)))
	assert.Equal(t, 2*time.Second, c.Left(start.Add(11*time.Second)))
	assert.True(t, c.Done(start.Add(13*time.Second)))
}

func TestCountdown_MultiplePauses(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewCountdown(5 * time.Second)
	c.Start(start)

	c.Pause(start.Add(1 * time.Second))
	c.Resume(start.Add(2 * time.Second))
	c.Pause(start.Add(3 * time.Second))
	c.Resume(start.Add(6 * time.Second))

	assert.Equal(t, 4*time.Second, c.PausedTotal(start.Add(6*time.Second)))
	assert.Equal(t, 3*time.Second, c.Left(start.Add(6*time.Second)))
	assert.True(t, c.Done(start.Add(9*time.Second)))
	assert.False(t, c.Done(start.Add(9*time.Second-time.Millisecond)))
}

func TestCountdown_ResumeWithoutPause(t *testing.T) {
	c := NewCountdown(time.Second)
	c.Start(time.Unix(0, 0))
	assert.False(t, c.Resume(time.Unix(1, 0)))
}
