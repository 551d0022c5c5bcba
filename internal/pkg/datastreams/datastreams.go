/*
Package datastreams carries completed-step frames from the simulation to
external recorders. A Handler subscribes to the system's status topic and
hands every frame to one Recorder; the recorder packages (mongodb,
natshandler, sqldb, influxdb) only know how to write a frame.
*/
package datastreams

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/interconnect/internal/pkg/msg"
	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.uber.org/zap"
)

// Recorder writes frames to an external sink.
type Recorder interface {
	Record(context.Context, report.Frame) error
	Close() error
}

// Source publishes completed-step frames to queued subscribers.
type Source interface {
	SubscribeQueue(uuid.UUID, msg.Topic) (<-chan msg.Msg, error)
	Unsubscribe(uuid.UUID)
}

// Handler feeds one recorder from a publisher.
type Handler struct {
	pid      uuid.UUID
	name     string
	inbox    <-chan msg.Msg
	source   Source
	recorder Recorder
	timeout  time.Duration
	logger   *zap.Logger
	recorded int
	failed   int
}

// New subscribes a recorder to the status frames of system. The subscription
// is queued so a slow recorder sees every frame.
func New(name string, recorder Recorder, system Source, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pid := uuid.New()
	inbox, err := system.SubscribeQueue(pid, msg.Status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Handler{
		pid:      pid,
		name:     name,
		inbox:    inbox,
		source:   system,
		recorder: recorder,
		timeout:  5 * time.Second,
		logger:   logger.Named("datastreams").With(zap.String("recorder", name)),
	}, nil
}

// PID is an accessor for the process id
func (h *Handler) PID() uuid.UUID { return h.pid }

// Name is an accessor for the recorder name
func (h *Handler) Name() string { return h.name }

// Recorded counts frames written.
func (h *Handler) Recorded() int { return h.recorded }

// Failed counts frames the recorder rejected.
func (h *Handler) Failed() int { return h.failed }

// Process records frames until the publisher closes the subscription or ctx
// is cancelled, then closes the recorder. A failed write is logged and the
// frame dropped.
func (h *Handler) Process(ctx context.Context) error {
	h.logger.Info("process started")
	defer func() {
		h.source.Unsubscribe(h.pid)
		if err := h.recorder.Close(); err != nil {
			h.logger.Warn("close failed", zap.Error(err))
		}
		h.logger.Info("process shutdown", zap.Int("recorded", h.recorded), zap.Int("failed", h.failed))
	}()

	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				return nil
			}
			frame, ok := m.Payload().(report.Frame)
			if !ok {
				h.logger.Warn("unexpected payload", zap.String("type", fmt.Sprintf("%T", m.Payload())))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, h.timeout)
			err := h.recorder.Record(wctx, frame)
			cancel()
			if err != nil {
				h.failed++
				h.logger.Warn("record failed", zap.Int64("time", int64(frame.Time)), zap.Error(err))
				continue
			}
			h.recorded++
		case <-ctx.Done():
			return nil
		}
	}
}
