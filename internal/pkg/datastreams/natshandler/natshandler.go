// Package natshandler publishes every snapshot of a frame as JSON on a
// subject derived from the object kind and name.
package natshandler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
	"github.com/ohowland/interconnect/internal/pkg/report"
)

// Config selects the server and subject prefix.
type Config struct {
	URL    string `json:"URL"`
	Prefix string `json:"Prefix"`
}

// Conn is the part of a NATS connection the recorder uses.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(time.Duration) error
	Close()
}

// Recorder implements datastreams.Recorder.
type Recorder struct {
	conn   Conn
	prefix string
}

// New connects to cfg.URL, or the default local server when empty.
func New(cfg Config) (*Recorder, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("gridsim"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewWithConn(nc, cfg.Prefix), nil
}

// NewWithConn publishes over an existing connection.
func NewWithConn(conn Conn, prefix string) *Recorder {
	if prefix == "" {
		prefix = "gridsim"
	}
	return &Recorder{conn: conn, prefix: prefix}
}

// Subject is prefix.kind.name with separators and wildcards in the name
// replaced.
func (r *Recorder) Subject(s report.Snapshot) string {
	name := strings.Map(func(c rune) rune {
		switch c {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return c
	}, s.Name)
	return r.prefix + "." + s.Kind + "." + name
}

// Record publishes each snapshot and flushes.
func (r *Recorder) Record(ctx context.Context, f report.Frame) error {
	for _, s := range f.Snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if err := r.conn.Publish(r.Subject(s), data); err != nil {
			return fmt.Errorf("unable to publish to nats server: %w", err)
		}
	}
	timeout := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	return r.conn.FlushTimeout(timeout)
}

// Close closes the connection.
func (r *Recorder) Close() error {
	r.conn.Close()
	return nil
}
