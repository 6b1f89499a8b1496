package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step = 50 * time.Millisecond

type countingStepper struct {
	calls   int
	confirm func(call int) bool
}

func (c *countingStepper) Update() (bool, error) {
	c.calls++
	if c.confirm == nil {
		return true, nil
	}
	return c.confirm(c.calls), nil
}

func newSched(t *testing.T, st Stepper, p Presenter) (*Scheduler, *ManualClock) {
	t.Helper()
	clk := NewManualClock(time.Unix(1000, 0))
	s, err := New(Config{Step: step}, st, p, clk, nil)
	require.NoError(t, err)
	require.NoError(t, s.Frame(clk.Now()))
	return s, clk
}

func TestFrame_StepsAndAlpha(t *testing.T) {
	st := &countingStepper{}
	var alphas []float64
	s, clk := newSched(t, st, func(a float64) error { alphas = append(alphas, a); return nil })

	require.NoError(t, s.Frame(clk.Advance(125*time.Millisecond)))
	assert.Equal(t, 2, st.calls)
	assert.Equal(t, 25*time.Millisecond, s.Accumulator())
	assert.InDelta(t, 0.5, s.Alpha(), 1e-9)
	assert.Len(t, alphas, 2)
}

func TestFrame_ClampsLongFrames(t *testing.T) {
	st := &countingStepper{}
	s, clk := newSched(t, st, nil)

	require.NoError(t, s.Frame(clk.Advance(10*time.Second)))
	assert.Equal(t, int(DefaultMaxFrame/step), st.calls)
	assert.Zero(t, s.Accumulator())
}

func TestFrame_StarvedDoesNotConsume(t *testing.T) {
	st := &countingStepper{confirm: func(int) bool { return false }}
	s, clk := newSched(t, st, nil)

	require.NoError(t, s.Frame(clk.Advance(40*time.Millisecond)))
	assert.Zero(t, st.calls)
	before := s.Accumulator()
	require.Equal(t, 40*time.Millisecond, before)

	require.NoError(t, s.Frame(clk.Advance(80*time.Millisecond)))
	assert.Equal(t, 1, st.calls)
	assert.Equal(t, before+80*time.Millisecond, s.Accumulator())
	assert.Equal(t, uint64(0), s.Steps())
	assert.Equal(t, uint64(1), s.Starved())
	assert.GreaterOrEqual(t, s.Alpha(), 0.0)
	assert.Less(t, s.Alpha(), 1.0)

	// Every starved frame adds its clamped elapsed time and nothing is taken.
	for i := 0; i < 3; i++ {
		before = s.Accumulator()
		require.NoError(t, s.Frame(clk.Advance(200*time.Millisecond)))
		assert.Equal(t, before+200*time.Millisecond, s.Accumulator())
	}
	assert.Equal(t, 4, st.calls)
	assert.Less(t, s.Alpha(), 1.0)
}

func TestFrame_ResumesAfterStarvation(t *testing.T) {
	st := &countingStepper{confirm: func(call int) bool { return call > 1 }}
	s, clk := newSched(t, st, nil)

	require.NoError(t, s.Frame(clk.Advance(50*time.Millisecond)))
	assert.Equal(t, uint64(0), s.Steps())
	require.NoError(t, s.Frame(clk.Advance(10*time.Millisecond)))
	assert.Equal(t, uint64(1), s.Steps())
	assert.Equal(t, 10*time.Millisecond, s.Accumulator())
}

func TestFrame_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	s, clk := newSched(t, StepperFunc(func() (bool, error) { return false, boom }), nil)
	assert.ErrorIs(t, s.Frame(clk.Advance(step)), boom)
}

func TestRun_StopsOnStepError(t *testing.T) {
	boom := errors.New("boom")
	clk := NewManualClock(time.Unix(0, 0))
	s, err := New(Config{Step: step, FrameInterval: time.Millisecond},
		StepperFunc(func() (bool, error) { return false, boom }), nil, clk, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, boom)
			return
		case <-deadline:
			t.Fatal("loop did not halt")
		case <-time.After(time.Millisecond):
			clk.Advance(step)
		}
	}
}

func TestRun_Stop(t *testing.T) {
	s, err := New(Config{Step: step, FrameInterval: time.Millisecond}, &countingStepper{}, nil, nil, nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	s.Stop()
	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{}, &countingStepper{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Step: step}, nil, nil, nil, nil)
	assert.Error(t, err)
}
