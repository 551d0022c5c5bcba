package generator

import (
	"errors"
	"testing"

	"github.com/ohowland/interconnect/internal/pkg/asset"
	"github.com/ohowland/interconnect/internal/pkg/fault"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gotest.tools/v3/assert"
)

type brokenDevice struct{}

func (brokenDevice) ReadDeviceStatus() (asset.MachineStatus, error) {
	return asset.MachineStatus{}, errors.New("timeout")
}

func (brokenDevice) WriteDeviceControl(asset.MachineControl) error {
	return errors.New("timeout")
}

func TestNewRejectsNegative(t *testing.T) {
	_, err := New(Config{Name: "g", Capacity: -1}, nil, nil)
	assert.Assert(t, errors.Is(err, fault.ErrConfiguration))
	_, err = New(Config{Name: "g", Capacity: 10, Losses: 1}, nil, nil)
	assert.Assert(t, errors.Is(err, fault.ErrConfiguration))
}

func TestContributionAtNominal(t *testing.T) {
	g, err := New(Config{Name: "g", Inertia: 50, Capacity: 100, Setpoint: 80, Droop: 0.05, Losses: 0.01}, nil, nil)
	assert.NilError(t, err)

	u, err := g.Contribution(60, 60)
	assert.NilError(t, err)
	assert.Equal(t, u, msg.Update{Inertia: 50, Capacity: 100, Supply: 80, Losses: 0.8})
}

func TestDroopResponse(t *testing.T) {
	g, err := New(Config{Name: "g", Capacity: 100, Setpoint: 50, Droop: 0.05}, nil, nil)
	assert.NilError(t, err)

	// 1% low frequency with 5% droop raises output by 20% of capacity
	u, err := g.Contribution(59.4, 60)
	assert.NilError(t, err)
	assert.Assert(t, u.Supply > 69.99 && u.Supply < 70.01, "supply %g", u.Supply)

	u, err = g.Contribution(54, 60)
	assert.NilError(t, err)
	assert.Equal(t, u.Supply, 100.0)
}

func TestOfflineContributesNothing(t *testing.T) {
	device := asset.NewStaticDevice(asset.MachineStatus{Online: true, KW: 30})
	g, err := New(Config{Name: "g", Inertia: 10, Capacity: 100}, device, nil)
	assert.NilError(t, err)

	device.SetOnline(false)
	u, err := g.Contribution(60, 60)
	assert.NilError(t, err)
	assert.Equal(t, u, msg.Update{})
}

func TestRegulate(t *testing.T) {
	device := asset.NewStaticDevice(asset.MachineStatus{Online: true, KW: 90})
	g, err := New(Config{Name: "g", Capacity: 100, Setpoint: 90, Dispatchable: true}, device, nil)
	assert.NilError(t, err)

	assert.Equal(t, g.Regulate(20), 10.0)
	assert.Equal(t, g.Setpoint(), 100.0)
	status, _ := device.ReadDeviceStatus()
	assert.Equal(t, status.KW, 100.0)

	fixed, err := New(Config{Name: "f", Capacity: 100, Setpoint: 50}, nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, fixed.Regulate(5), 0.0)
	assert.Equal(t, fixed.Setpoint(), 50.0)
}

func TestReadFailureKeepsSetpoint(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g, err := New(Config{Name: "g", Capacity: 100, Setpoint: 40}, brokenDevice{}, zap.New(core))
	assert.NilError(t, err)

	u, err := g.Contribution(60, 60)
	assert.NilError(t, err)
	assert.Equal(t, u.Supply, 40.0)
	assert.Equal(t, logs.FilterMessage("device read failed, using last setpoint").Len(), 1)
}
