// Package scheduler converts variable-rate frames into fixed-rate simulation
// steps and reports how far the presentation is between two steps.
package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxFrame      = 250 * time.Millisecond
	DefaultFrameInterval = time.Second / 60
)

// Stepper advances the simulation by one step. It reports false when the
// step cannot run yet (inputs not confirmed); the scheduler then stops
// consuming time for this frame and retries on the next one.
type Stepper interface {
	Update() (bool, error)
}

type StepperFunc func() (bool, error)

func (f StepperFunc) Update() (bool, error) { return f() }

// Presenter receives the interpolation factor once per frame.
type Presenter func(alpha float64) error

type Config struct {
	Step          time.Duration
	MaxFrame      time.Duration
	FrameInterval time.Duration
}

type Scheduler struct {
	cfg     Config
	stepper Stepper
	present Presenter
	clock   Clock
	log     *zap.Logger

	started bool
	last    time.Time
	acc     time.Duration
	alpha   float64
	frames  uint64
	steps   uint64
	starved uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg Config, stepper Stepper, present Presenter, clock Clock, log *zap.Logger) (*Scheduler, error) {
	if cfg.Step <= 0 {
		return nil, errors.New("scheduler: step must be > 0")
	}
	if stepper == nil {
		return nil, errors.New("scheduler: nil stepper")
	}
	if cfg.MaxFrame <= 0 {
		cfg.MaxFrame = DefaultMaxFrame
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cfg:     cfg,
		stepper: stepper,
		present: present,
		clock:   clock,
		log:     log.Named("scheduler"),
		stop:    make(chan struct{}),
	}, nil
}

// Frame runs one display frame at time now. The first call only records the
// time origin. An error from the stepper or presenter is returned as-is.
func (s *Scheduler) Frame(now time.Time) error {
	s.frames++
	if !s.started {
		s.started = true
		s.last = now
	}
	elapsed := now.Sub(s.last)
	s.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.cfg.MaxFrame {
		elapsed = s.cfg.MaxFrame
	}
	s.acc += elapsed

	for s.acc >= s.cfg.Step {
		ok, err := s.stepper.Update()
		if err != nil {
			return err
		}
		if !ok {
			// Starved: simulation time stands still until the bundle arrives.
			s.starved++
			break
		}
		s.steps++
		s.acc -= s.cfg.Step
	}

	s.alpha = float64(s.acc) / float64(s.cfg.Step)
	if s.alpha >= 1 {
		s.alpha = math.Nextafter(1, 0)
	}
	if s.present != nil {
		return s.present(s.alpha)
	}
	return nil
}

// Run drives Frame from a ticker until ctx ends, Stop is called, or a frame
// fails. Only the failure case returns a non-nil error.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	s.log.Info("loop started",
		zap.Duration("step", s.cfg.Step),
		zap.Duration("frame_interval", s.cfg.FrameInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("loop stopped", zap.Error(ctx.Err()))
			return nil
		case <-s.stop:
			s.log.Info("loop stopped")
			return nil
		case <-ticker.C:
			if err := s.Frame(s.clock.Now()); err != nil {
				s.log.Error("frame failed; halting loop", zap.Uint64("frame", s.frames), zap.Error(err))
				return err
			}
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) Accumulator() time.Duration { return s.acc }
func (s *Scheduler) Alpha() float64             { return s.alpha }
func (s *Scheduler) Frames() uint64             { return s.frames }
func (s *Scheduler) Steps() uint64              { return s.steps }
func (s *Scheduler) Starved() uint64            { return s.starved }
