package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type writer struct {
	points []*write.Point
	err    error
}

func (w *writer) WritePoint(_ context.Context, point ...*write.Point) error {
	w.points = append(w.points, point...)
	return w.err
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func frame(pid uuid.UUID) report.Frame {
	return report.Frame{Time: 90, Snapshots: []report.Snapshot{
		{Time: 90, PID: pid, Kind: "controlarea", Name: "A", Properties: []report.Property{
			report.Quantity("ace", "MW", 2.5),
			report.Enum("status", 1, "OVERCAPACITY"),
		}},
		{Time: 90, Kind: "load", Name: "empty"},
	}}
}

func TestPoints(t *testing.T) {
	pid := uuid.New()
	r := NewWithWriter(&writer{}, start)
	points := r.Points(frame(pid))
	assert.Assert(t, is.Len(points, 1))

	p := points[0]
	assert.Equal(t, p.Name(), "controlarea")
	assert.Equal(t, p.Time(), start.Add(90*time.Second))

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.DeepEqual(t, tags, map[string]string{"name": "A", "pid": pid.String()})

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, fields["ace"], 2.5)
	assert.Equal(t, fields["status"], 1.0)
}

func TestRecord(t *testing.T) {
	w := &writer{}
	r := NewWithWriter(w, start)
	assert.NilError(t, r.Record(context.Background(), frame(uuid.New())))
	assert.Assert(t, is.Len(w.points, 1))
	assert.NilError(t, r.Record(context.Background(), report.Frame{}))
	assert.Assert(t, is.Len(w.points, 1))
	assert.NilError(t, r.Close())

	w.err = errors.New("unauthorized")
	assert.ErrorContains(t, r.Record(context.Background(), frame(uuid.New())), "unauthorized")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Config{URL: "http://localhost:8086"}, start)
	assert.ErrorContains(t, err, "bucket")
}
