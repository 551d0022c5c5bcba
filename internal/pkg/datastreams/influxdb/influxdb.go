// Package influxdb writes frames to InfluxDB as one point per snapshot,
// measured by object kind and tagged by name.
package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/ohowland/interconnect/internal/pkg/report"
)

// Config selects the server and bucket.
type Config struct {
	URL    string `json:"URL"`
	Token  string `json:"Token"`
	Org    string `json:"Org"`
	Bucket string `json:"Bucket"`
}

// PointWriter is the part of the blocking write API the recorder uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Recorder implements datastreams.Recorder.
type Recorder struct {
	client influxdb2.Client
	writer PointWriter
	start  time.Time
}

// New connects to cfg.URL. Simulation time is written relative to start.
func New(cfg Config, start time.Time) (*Recorder, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influxdb: url and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		start:  start,
	}, nil
}

// NewWithWriter writes through an existing writer.
func NewWithWriter(w PointWriter, start time.Time) *Recorder {
	return &Recorder{writer: w, start: start}
}

// Points converts a frame. Each property becomes a field of its snapshot's
// point.
func (r *Recorder) Points(f report.Frame) []*write.Point {
	points := make([]*write.Point, 0, len(f.Snapshots))
	for _, s := range f.Snapshots {
		if len(s.Properties) == 0 {
			continue
		}
		fields := make(map[string]interface{}, len(s.Properties))
		for _, p := range s.Properties {
			fields[p.Name] = p.Value
		}
		tags := map[string]string{
			"name": s.Name,
			"pid":  s.PID.String(),
		}
		points = append(points, influxdb2.NewPoint(s.Kind, tags, fields, s.Time.Time(r.start)))
	}
	return points
}

// Record writes the frame's points.
func (r *Recorder) Record(ctx context.Context, f report.Frame) error {
	points := r.Points(f)
	if len(points) == 0 {
		return nil
	}
	if err := r.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influxdb: write: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *Recorder) Close() error {
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
