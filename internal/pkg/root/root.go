/*
Package root drives a simulation. System owns the built network and advances
it one step at a time from a single goroutine; readers only ever see the
frame stored at the end of a completed step.
*/
package root

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/clock"
	"github.com/ohowland/interconnect/internal/pkg/config"
	"github.com/ohowland/interconnect/internal/pkg/controlarea"
	"github.com/ohowland/interconnect/internal/pkg/dispatch"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/interconnection"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Config bounds the simulation clock.
type Config struct {
	MaxStep int64           // s, longest step
	Stop    clock.Timestamp // last step time, Never runs until cancelled
	Pace    time.Duration   // wall-clock delay between steps
}

// System is the root node of the simulation.
type System struct {
	mux       *sync.RWMutex
	pid       uuid.UUID
	logger    *zap.Logger
	config    Config
	network   *config.Network
	publisher *msg.PubSub
	dispatch  dispatch.Dispatcher

	now   clock.Timestamp
	next  clock.Timestamp
	steps int
	frame report.Frame
	err   error
}

// NewSystem returns a System for a built network. A zero Stop runs until
// the context given to Run is cancelled.
func NewSystem(network *config.Network, cfg Config, logger *zap.Logger) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if network == nil || network.Interconnection == nil {
		return nil, fault.Configuration("system", "no network to simulate")
	}
	if cfg.MaxStep < 1 {
		return nil, fault.Configuration("system", "max step %d must be at least 1 s", cfg.MaxStep)
	}
	if cfg.Stop <= 0 {
		cfg.Stop = clock.Never
	}
	pid := uuid.New()
	s := &System{
		mux:       &sync.RWMutex{},
		pid:       pid,
		logger:    logger.Named("system"),
		config:    cfg,
		network:   network,
		publisher: msg.NewPublisher(pid),
		next:      clock.Never,
	}
	if network.Dispatch != nil {
		s.dispatch = network.Dispatch
	}
	return s, nil
}

// PID is an accessor for the process id
func (s *System) PID() uuid.UUID { return s.pid }

// Subscribe returns a channel receiving a report.Frame on msg.Status after
// every step.
func (s *System) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return s.publisher.Subscribe(pid, topic)
}

// SubscribeQueue is Subscribe without drops: every frame is held until the
// subscriber receives it.
func (s *System) SubscribeQueue(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return s.publisher.SubscribeQueue(pid, topic)
}

// Unsubscribe closes the subscriber's channels.
func (s *System) Unsubscribe(pid uuid.UUID) {
	s.publisher.Unsubscribe(pid)
}

// Network returns the simulated objects.
func (s *System) Network() *config.Network { return s.network }

// Init primes every accumulator at the initial frequency and initializes the
// interconnection.
func (s *System) Init() error {
	ic := s.network.Interconnection
	ic.PreCommit(0)
	if err := s.collect(); err != nil {
		return err
	}
	res, err := ic.Init()
	if err != nil {
		return err
	}
	if res == interconnection.Deferred {
		return fault.Configuration(ic.Name(), "no control areas registered")
	}
	s.now = 0
	s.next = clock.Min(clock.Timestamp(0).Add(float64(s.config.MaxStep)), s.config.Stop)
	s.store(0)
	s.logger.Info("initialized",
		zap.Int("areas", len(s.network.Areas)),
		zap.Int("interties", len(s.network.Interties)),
		zap.Int("units", len(s.network.Bindings)))
	return nil
}

// collect resets the accumulators and gathers one update from every unit
// into its area and from every area into the interconnection.
func (s *System) collect() error {
	ic := s.network.Interconnection
	if err := ic.PreSync(); err != nil {
		return err
	}
	for _, a := range s.network.Areas {
		a.Reset()
	}
	f, fn := ic.Frequency(), ic.NominalFrequency()
	for _, b := range s.network.Bindings {
		if err := asset.Send(b.Unit, b.Area, f, fn); err != nil {
			s.logger.Warn("unit update rejected", zap.String("unit", b.Unit.Name()), zap.Error(err))
		}
	}
	for _, a := range s.network.Areas {
		if err := a.Sync(); err != nil {
			if interconnection.Fatal(err) {
				return err
			}
			s.logger.Warn("area update rejected", zap.String("area", a.Name()), zap.Error(err))
		}
	}
	return nil
}

// Step advances the simulation from the current time to the next wake.
func (s *System) Step() error {
	if s.err != nil {
		return s.err
	}
	if err := s.step(); err != nil {
		s.err = err
		s.logger.Error("step failed", zap.Int64("time", int64(s.next)), zap.Error(err))
		return err
	}
	return nil
}

func (s *System) step() error {
	ic := s.network.Interconnection
	if !ic.Initialized() {
		return fault.Configuration(ic.Name(), "system is not initialized")
	}
	t0, t1 := s.now, s.next

	ic.PreCommit(t0)
	if err := s.collect(); err != nil {
		return err
	}
	wake, err := ic.Advance(t1)
	if err != nil {
		return err
	}
	s.schedule()
	f, fn := ic.Frequency(), ic.NominalFrequency()
	for _, a := range s.network.Areas {
		if err := a.PostSync(f, fn); err != nil {
			return err
		}
	}
	if err := ic.Commit(); err != nil {
		return err
	}

	s.now = t1
	s.steps++
	s.next = clock.Min(clock.Min(wake, t1.Add(float64(s.config.MaxStep))), s.config.Stop)
	s.store(t1)
	return nil
}

// schedule hands the aggregate of every CENTRAL area to the dispatcher.
func (s *System) schedule() {
	if s.dispatch == nil {
		return
	}
	for _, a := range s.network.Areas {
		if a.Config().ScheduleSource != controlarea.Central {
			continue
		}
		s.dispatch.UpdateStatus(a.PID(), dispatch.FromUpdate(a.Accounting()))
	}
	if err := s.dispatch.Solve(); err != nil {
		s.logger.Warn("central dispatch failed", zap.Error(err))
	}
}

func (s *System) store(now clock.Timestamp) {
	reporters := s.network.Reporters()
	frame := report.Frame{Time: now, Snapshots: make([]report.Snapshot, 0, len(reporters))}
	for _, r := range reporters {
		frame.Snapshots = append(frame.Snapshots, r.Snapshot(now))
	}

	s.mux.Lock()
	s.frame = frame
	s.mux.Unlock()

	if dropped := s.publisher.Publish(msg.Status, frame); dropped > 0 {
		s.logger.Warn("subscribers missed a frame", zap.Int("dropped", dropped))
	}
}

// Frame returns the snapshots of the last completed step.
func (s *System) Frame() report.Frame {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.frame
}

// Now is the time of the last completed step.
func (s *System) Now() clock.Timestamp { return s.now }

// Next is the time the next step will advance to.
func (s *System) Next() clock.Timestamp { return s.next }

// Steps counts completed steps.
func (s *System) Steps() int { return s.steps }

// Done reports whether the stop time was reached.
func (s *System) Done() bool { return s.now >= s.config.Stop }

// Err returns the error that halted the run.
func (s *System) Err() error { return s.err }

// Run steps until the stop time, a fatal error or cancellation. Subscribers
// are released when it returns.
func (s *System) Run(ctx context.Context) error {
	defer s.publisher.Close()

	var pace <-chan time.Time
	if s.config.Pace > 0 {
		ticker := time.NewTicker(s.config.Pace)
		defer ticker.Stop()
		pace = ticker.C
	}

	s.logger.Info("run started", zap.Int64("stop", int64(s.config.Stop)))
	for !s.Done() {
		select {
		case <-ctx.Done():
			s.logger.Info("run cancelled", zap.Int64("time", int64(s.now)))
			return nil
		default:
		}
		if err := s.Step(); err != nil {
			return err
		}
		if pace != nil {
			select {
			case <-ctx.Done():
			case <-pace:
			}
		}
	}
	s.logger.Info("run complete", zap.Int64("time", int64(s.now)), zap.Int("steps", s.steps))
	return nil
}
