package intertie

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"gotest.tools/v3/assert"
)

func newTie(t *testing.T, config Config) *Intertie {
	t.Helper()
	tie, err := New(config, uuid.New(), uuid.New())
	assert.NilError(t, err)
	return tie
}

func TestNewDefaults(t *testing.T) {
	tie := newTie(t, Config{Name: "ab", InService: true})
	assert.Equal(t, tie.Admittance(), 1.0)
	assert.Equal(t, tie.Status(), OK)
	assert.Assert(t, tie.IsA(msg.KindIntertie))
	assert.Assert(t, !tie.IsA(msg.KindControlArea))
}

func TestNewInvalid(t *testing.T) {
	pid := uuid.New()
	_, err := New(Config{Name: "loop", InService: true}, pid, pid)
	assert.Assert(t, errors.Is(err, fault.ErrConfiguration))

	_, err = New(Config{Name: "neg", Admittance: -1}, uuid.New(), uuid.New())
	assert.Assert(t, errors.Is(err, fault.ErrConfiguration))

	_, err = New(Config{Name: "cap", Capacity: -5}, uuid.New(), uuid.New())
	assert.Assert(t, errors.Is(err, fault.ErrConfiguration))
}

func TestSetFlow(t *testing.T) {
	tie := newTie(t, Config{Name: "ab", Capacity: 10, InService: true})

	tie.SetFlow(8, false)
	assert.Equal(t, tie.Flow(), 8.0)
	assert.Equal(t, tie.Actual(), 8.0)
	assert.Equal(t, tie.Status(), OK)

	tie.SetFlow(-12, true)
	assert.Equal(t, tie.Status(), Overcapacity)
}

func TestOutOfService(t *testing.T) {
	tie := newTie(t, Config{Name: "ab", InService: true})
	tie.SetFlow(5, false)

	tie.SetInService(false)
	assert.Equal(t, tie.Flow(), 0.0)
	assert.Equal(t, tie.Status(), OutOfService)

	tie.SetFlow(5, false)
	assert.Equal(t, tie.Flow(), 0.0)

	tie.SetInService(true)
	assert.Equal(t, tie.Status(), OK)
}

func TestSnapshot(t *testing.T) {
	tie := newTie(t, Config{Name: "ab", InService: true})
	tie.SetFlow(20, false)

	snap := tie.Snapshot(60)
	p, ok := snap.Property("flow")
	assert.Assert(t, ok)
	assert.Equal(t, p.Text, "20.000 MW")
	p, _ = snap.Property("status")
	assert.Equal(t, p.Text, "OK")
}
