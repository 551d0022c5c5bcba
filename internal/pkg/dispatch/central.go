package dispatch

import (
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Central schedules every member so the exchanges sum to zero. Each member
// keeps its own net position less its share of the system mismatch. Manual
// overrides replace the computed value for a member.
type Central struct {
	mux          *sync.Mutex
	logger       *zap.Logger
	memberStatus map[uuid.UUID]Status
	manual       map[uuid.UUID]float64
	schedule     map[uuid.UUID]float64
}

// NewCentral returns an empty central scheduler.
func NewCentral(logger *zap.Logger) *Central {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Central{
		mux:          &sync.Mutex{},
		logger:       logger.Named("dispatch"),
		memberStatus: make(map[uuid.UUID]Status),
		manual:       make(map[uuid.UUID]float64),
		schedule:     make(map[uuid.UUID]float64),
	}
}

// UpdateStatus records the latest status of a member.
func (c *Central) UpdateStatus(pid uuid.UUID, status Status) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.memberStatus[pid] = status
}

// DropStatus forgets a member.
func (c *Central) DropStatus(pid uuid.UUID) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.memberStatus, pid)
	delete(c.manual, pid)
	delete(c.schedule, pid)
}

// Set overrides the schedule of a member until Clear is called.
func (c *Central) Set(pid uuid.UUID, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.New("manual schedule must be finite")
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.manual[pid] = value
	return nil
}

// Clear removes a manual override.
func (c *Central) Clear(pid uuid.UUID) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.manual, pid)
}

// Solve recomputes every member schedule from the recorded statuses.
func (c *Central) Solve() error {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.schedule = make(map[uuid.UUID]float64, len(c.memberStatus))
	if len(c.memberStatus) == 0 {
		return nil
	}
	mismatch := aggregateNet(c.memberStatus)
	if math.IsNaN(mismatch) || math.IsInf(mismatch, 0) {
		return errors.New("central dispatch: non-finite net position")
	}
	w := weights(c.memberStatus)
	for pid, status := range c.memberStatus {
		if v, ok := c.manual[pid]; ok {
			c.schedule[pid] = v
			continue
		}
		c.schedule[pid] = status.Net - w[pid]*mismatch
	}
	c.logger.Debug("solved", zap.Int("members", len(c.memberStatus)), zap.Float64("mismatch", mismatch))
	return nil
}

// Schedule returns the last solved schedule of a member.
func (c *Central) Schedule(pid uuid.UUID) (float64, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	v, ok := c.schedule[pid]
	return v, ok
}
